package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/app"
	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn_id", string(c.id)).Msg("readPump closing")
		ctl.onDisconnect(c)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn_id", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn_id", string(c.id)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(c, data)
		}
	}
}

// onDisconnect removes the connection from the table and releases its
// presence binding. Runs exactly once per connection, whatever killed
// the read loop.
func (ctl *SignalWSController) onDisconnect(c *WsSignalConn) {
	ctl.Table.Remove(c.id)
	userID, transition := ctl.Presence.Deregister(c.id)
	if transition == app.TransitionOffline {
		log.Info().Str("module", "signal").
			Str("user_id", string(userID)).Msg("user went offline")
	}
}

func (ctl *SignalWSController) handleSignal(c *WsSignalConn, data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").
			Str("conn_id", string(c.id)).Msg("dropping malformed signal")
		return
	}

	switch ev := ev.(type) {
	case protocol.UserJoin:
		ctl.handleJoin(c, ev)
	case protocol.Ping:
		ctl.handlePing(c)
	case protocol.Offer:
		ctl.handleOffer(c, ev, data)
	case protocol.Answer:
		ctl.relay(c, ev, data)
	case protocol.ICECandidate:
		ctl.relay(c, ev, data)
	case protocol.CallEnded:
		ctl.relay(c, ev, data)
	default:
		// call_failed, user_status_change and pong are server-emitted;
		// a client sending them is misbehaving.
		log.Warn().Str("module", "signal").
			Str("type", string(ev.Kind())).Msg("unexpected client event")
	}
}

func (ctl *SignalWSController) sendEvent(c *WsSignalConn, ev protocol.Event) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encoding event")
		return
	}
	if err := c.TrySend(core.Frame(frame)); err != nil {
		log.Warn().Err(err).Str("module", "signal").
			Str("conn_id", string(c.id)).Msg("send drop")
	}
}
