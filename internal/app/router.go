package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

var ErrRecipientOffline = errors.New("recipient has no live connections")

// PresenceIndex is the registry surface the router needs.
type PresenceIndex interface {
	Lookup(userID domain.UserID) []core.ConnID
}

// Sender delivers a frame to one live connection. Implemented by the
// websocket adapter's connection table.
type Sender interface {
	Send(connID core.ConnID, frame core.Frame) error
}

// Router relays signaling events between users. It holds no call state:
// each Route call looks the recipient up in the presence index and either
// forwards the original frame or reports failure to the origin
// connection. There is no retry and no queuing.
type Router struct {
	presence PresenceIndex
	sender   Sender
}

func NewRouter(presence PresenceIndex, sender Sender) *Router {
	return &Router{presence: presence, sender: sender}
}

// Route forwards ev (as its original wire frame) to the recipient's live
// connections. Offers, answers and candidates go to exactly one
// connection, the oldest; multi-device simultaneous ring is not a
// guarantee of this relay. Call-ended events fan out to every connection
// so each of the recipient's devices learns the call is over.
//
// When the recipient is unreachable the origin connection receives a
// call_failed event and Route returns ErrRecipientOffline.
func (r *Router) Route(origin core.ConnID, ev protocol.Event, raw core.Frame) error {
	to := ev.Recipient()
	conns := r.presence.Lookup(to)

	if len(conns) == 0 {
		r.failBack(origin, protocol.ReasonUserOffline)
		log.Info().Str("module", "app.router").
			Str("kind", string(ev.Kind())).Str("to", string(to)).
			Msg("recipient unreachable")
		return ErrRecipientOffline
	}

	if ev.Kind() == protocol.EventCallEnded {
		for _, connID := range conns {
			if err := r.sender.Send(connID, raw); err != nil {
				log.Warn().Err(err).Str("module", "app.router").
					Str("conn_id", string(connID)).Msg("call_ended fan-out drop")
			}
		}
		return nil
	}

	// Single delivery: walk the set oldest-first and stop at the first
	// connection that accepts the frame.
	for _, connID := range conns {
		if err := r.sender.Send(connID, raw); err != nil {
			log.Warn().Err(err).Str("module", "app.router").
				Str("conn_id", string(connID)).Msg("forward failed, trying next connection")
			continue
		}
		return nil
	}
	log.Warn().Str("module", "app.router").
		Str("kind", string(ev.Kind())).Str("to", string(to)).
		Msg("all connections rejected frame")
	return nil
}

// failBack reports a delivery failure to the connection that sent the
// undeliverable event.
func (r *Router) failBack(origin core.ConnID, reason string) {
	frame, err := protocol.Encode(protocol.CallFailed{Reason: reason})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("encoding call_failed")
		return
	}
	if err := r.sender.Send(origin, frame); err != nil {
		log.Warn().Err(err).Str("module", "app.router").
			Str("conn_id", string(origin)).Msg("call_failed delivery drop")
	}
}
