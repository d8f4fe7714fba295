package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

// Fanout delivers a frame to every live connection except those bound to
// the excluded user. Implemented by the websocket adapter's connection
// table.
type Fanout interface {
	Fanout(exclude domain.UserID, frame core.Frame)
}

type statusEvent struct {
	userID domain.UserID
	status domain.Status
}

// StatusNotifier broadcasts presence transitions to everyone else who is
// connected. Events are enqueued by the registry while it holds its lock
// and drained by a single goroutine, so transitions for the same user
// are always observed in the order they occurred. Delivery itself is
// best-effort: a full queue drops the event with a log line.
type StatusNotifier struct {
	fanout Fanout
	events chan statusEvent
}

func NewStatusNotifier(fanout Fanout) *StatusNotifier {
	return &StatusNotifier{
		fanout: fanout,
		events: make(chan statusEvent, 256),
	}
}

// Notify implements StatusSink. Called under the registry lock; must not
// block.
func (n *StatusNotifier) Notify(userID domain.UserID, status domain.Status) {
	select {
	case n.events <- statusEvent{userID: userID, status: status}:
	default:
		log.Warn().Str("module", "app.status").
			Str("user_id", string(userID)).Str("status", string(status)).
			Msg("status queue full, transition dropped")
	}
}

// Run drains the transition queue until ctx is done.
func (n *StatusNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events:
			n.broadcast(ev)
		}
	}
}

func (n *StatusNotifier) broadcast(ev statusEvent) {
	frame, err := protocol.Encode(protocol.UserStatusChange{
		UserID: ev.userID,
		Status: ev.status,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.status").Msg("encoding status change")
		return
	}
	n.fanout.Fanout(ev.userID, frame)
	log.Info().Str("module", "app.status").
		Str("user_id", string(ev.userID)).Str("status", string(ev.status)).
		Msg("broadcast status change")
}
