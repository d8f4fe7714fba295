// Headless call client: joins the relay under a user id, auto-accepts
// incoming calls with synthetic media, and optionally dials a peer.
// Useful for soak-testing the relay and as a wiring reference for real
// clients.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/adapters/rtc"
	"github.com/Mayank7805/QuickChat/internal/call"
	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

func main() {
	server := flag.String("server", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	user := flag.String("user", "", "user id to join as (required)")
	name := flag.String("name", "", "display name (defaults to user id)")
	peer := flag.String("peer", "", "user id to call; empty means answer-only")
	chat := flag.String("chat", "", "chat token for the outgoing call (required with -peer)")
	video := flag.Bool("video", false, "place a video call instead of audio")
	stun := flag.String("stun", "stun:stun.l.google.com:19302", "comma-separated STUN urls")
	ringTimeout := flag.Duration("ring-timeout", 45*time.Second, "give up on an unanswered call after this long")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *user == "" {
		log.Fatal().Msg("-user is required")
	}
	if *peer != "" && *chat == "" {
		log.Fatal().Msg("-chat is required when dialing with -peer")
	}
	if *name == "" {
		*name = *user
	}
	self := domain.User{ID: domain.UserID(*user)}
	if err := self.ID.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad -user")
	}
	if err := self.SetUsername(*name); err != nil {
		log.Fatal().Err(err).Msg("bad -name")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	media := rtc.NewSyntheticSource()
	defer media.Close()
	webrtcCfg := rtc.DefaultWebRTCConfig(strings.Split(*stun, ","))
	newLink := func() (core.PeerLink, error) {
		link, err := rtc.NewWebRTCLink(webrtcCfg)
		if err != nil {
			return nil, err
		}
		return link, nil
	}

	var mgr *call.Manager
	client := call.NewClient(*server, self.ID, func(ev protocol.Event) {
		mgr.Dispatch(ev)
	})
	mgr = call.NewManager(self, client, media, newLink, *ringTimeout)
	defer mgr.Close()
	defer client.Close()

	// In-flight signaling dies with the connection, so live calls do too.
	client.OnDown(func(err error) {
		mgr.Close()
	})

	mgr.OnIncoming(func(inc call.IncomingCall) {
		log.Info().Str("from", string(inc.From)).Str("name", inc.FromName).
			Str("call_type", string(inc.CallType)).Msg("auto-accepting call")
		if _, err := inc.Accept(ctx); err != nil {
			log.Error().Err(err).Msg("accept failed")
		}
	})
	mgr.OnStatus(func(userID domain.UserID, status domain.Status) {
		log.Info().Str("user_id", string(userID)).Str("status", string(status)).Msg("presence")
	})

	go client.Run(ctx)

	if *peer != "" {
		callType := domain.CallAudio
		if *video {
			callType = domain.CallVideo
		}
		// Give the join a moment to land before dialing.
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		s, err := mgr.StartCall(ctx, domain.ChatID(*chat), domain.UserID(*peer), callType)
		if err != nil {
			log.Fatal().Err(err).Msg("starting call")
		}
		s.OnEnd(func(reason call.EndReason) {
			log.Info().Str("reason", string(reason)).Msg("call over")
			cancel()
		})
	}

	<-ctx.Done()
}
