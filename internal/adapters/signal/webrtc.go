package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/app"
	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

// handleOffer forwards a call offer, subject to the per-user initiation
// rate limit. The sender must have joined first: anonymous connections
// cannot place calls.
func (ctl *SignalWSController) handleOffer(c *WsSignalConn, ev protocol.Offer, raw []byte) {
	from := c.BoundUser()
	if from == "" {
		ctl.sendEvent(c, protocol.CallFailed{Reason: protocol.ReasonNotJoined})
		return
	}
	if ev.From != from {
		log.Warn().Str("module", "signal").
			Str("claimed", string(ev.From)).Str("bound", string(from)).
			Msg("offer sender mismatch, dropping")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(from) {
		log.Warn().Str("module", "signal").
			Str("user_id", string(from)).Msg("call rate limit hit")
		ctl.sendEvent(c, protocol.CallFailed{Reason: protocol.ReasonCallThrottle})
		return
	}

	ctl.route(c, ev, raw)
}

// relay forwards answers, candidates and call-ended events. These only
// make sense from a joined connection, but unlike offers they need no
// rate limiting.
func (ctl *SignalWSController) relay(c *WsSignalConn, ev protocol.Event, raw []byte) {
	if c.BoundUser() == "" {
		log.Warn().Str("module", "signal").
			Str("type", string(ev.Kind())).Msg("signal from anonymous connection, dropping")
		return
	}
	ctl.route(c, ev, raw)
}

func (ctl *SignalWSController) route(c *WsSignalConn, ev protocol.Event, raw []byte) {
	err := ctl.Router.Route(c.id, ev, core.Frame(raw))
	if err != nil && !errors.Is(err, app.ErrRecipientOffline) {
		log.Error().Err(err).Str("module", "signal").
			Str("type", string(ev.Kind())).Msg("route error")
	}
}
