package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/Mayank7805/QuickChat/internal/adapters/http"
	wssignal "github.com/Mayank7805/QuickChat/internal/adapters/signal"
	"github.com/Mayank7805/QuickChat/internal/app"
	"github.com/Mayank7805/QuickChat/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	table := wssignal.NewConnTable()
	notifier := app.NewStatusNotifier(table)
	presence := app.NewRegistry(notifier)
	signalRouter := app.NewRouter(presence, table)
	limiter := app.NewCallRateLimiter(cfg.CallRateLimit, cfg.CallRateInterval)

	go notifier.Run(ctx)

	ctl := wssignal.NewSignalWSController(cfg, presence, signalRouter, limiter, table)
	r := router.SetupRouter(ctx, cfg, ctl, presence)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("QuickChat signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	table.CloseAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
