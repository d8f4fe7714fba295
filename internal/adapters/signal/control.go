package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/app"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

// handleJoin binds the connection to the announced identity. The
// surrounding system authenticates the user before the socket is opened;
// the relay trusts the identity it is handed.
func (ctl *SignalWSController) handleJoin(c *WsSignalConn, ev protocol.UserJoin) {
	c.bind(ev.UserID)
	transition := ctl.Presence.Register(ev.UserID, c.id)

	log.Info().Str("module", "signal").
		Str("user_id", string(ev.UserID)).Str("conn_id", string(c.id)).
		Bool("came_online", transition == app.TransitionOnline).
		Msg("join")
}

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendEvent(c, protocol.Pong{})
}
