package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/adapters/signal"
	"github.com/Mayank7805/QuickChat/internal/app"
	"github.com/Mayank7805/QuickChat/internal/config"
	"github.com/Mayank7805/QuickChat/internal/domain"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController, presence *app.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("QuickChatSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	// Presence lookup for the surrounding CRUD layer (chat list "online"
	// dots without holding a socket open).
	api.GET("/presence/:userId", func(c *gin.Context) {
		userID := domain.UserID(c.Param("userId"))
		status := domain.StatusOffline
		if len(presence.Lookup(userID)) > 0 {
			status = domain.StatusOnline
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID, "status": status})
	})

	// ICE servers advertised to call clients.
	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"stun_urls": cfg.STUNURLs})
	})

	return r
}
