package core

import (
	"github.com/Mayank7805/QuickChat/internal/domain"
)

// Frame is a raw signaling payload as it travels on the wire.
type Frame []byte

// ConnID identifies one live transport connection. Assigned by the
// adapter at upgrade time; never reused.
type ConnID string

// SignalConnection is one live transport connection as the routing
// tables see it. Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() ConnID
	// BoundUser returns the identity announced on this connection, ""
	// while the connection is still anonymous.
	BoundUser() domain.UserID
	TrySend(Frame) error
	Close()
}
