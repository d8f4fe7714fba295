package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
)

// Transition reports how a register/deregister call changed a user's
// aggregate presence.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOnline
	TransitionOffline
)

// StatusSink receives presence transitions. Notify is invoked while the
// registry lock is held, so implementations must not call back into the
// registry; they should hand the event off and return.
type StatusSink interface {
	Notify(userID domain.UserID, status domain.Status)
}

// Registry is the authoritative index of which users are reachable over
// which live connections. A user appears in the index exactly while it
// has at least one bound connection; the entry for a user is removed the
// moment its last connection goes away.
//
// Connection order is preserved: Lookup returns connections oldest
// first, which is what makes "deliver to the first connection" routing
// deterministic.
type Registry struct {
	mu    sync.RWMutex
	users map[domain.UserID][]core.ConnID
	conns map[core.ConnID]domain.UserID
	sink  StatusSink
}

func NewRegistry(sink StatusSink) *Registry {
	return &Registry{
		users: make(map[domain.UserID][]core.ConnID),
		conns: make(map[core.ConnID]domain.UserID),
		sink:  sink,
	}
}

// Register binds connID to userID. Returns TransitionOnline when this is
// the user's first live connection; additional devices/tabs for an
// already-online user return TransitionNone so the aggregate status is
// announced exactly once.
func (r *Registry) Register(userID domain.UserID, connID core.ConnID) Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[connID]; ok {
		if prev == userID {
			return TransitionNone
		}
		// Re-join under a different identity: unbind first, announcing
		// the old identity's departure if that was its last connection.
		if r.removeLocked(connID, prev) && r.sink != nil {
			r.sink.Notify(prev, domain.StatusOffline)
		}
	}

	set := r.users[userID]
	r.conns[connID] = userID
	r.users[userID] = append(set, connID)

	log.Debug().Str("module", "app.presence").
		Str("user_id", string(userID)).Str("conn_id", string(connID)).
		Int("connections", len(set)+1).Msg("registered connection")

	if len(set) == 0 {
		if r.sink != nil {
			r.sink.Notify(userID, domain.StatusOnline)
		}
		return TransitionOnline
	}
	return TransitionNone
}

// Deregister unbinds connID from whichever user owns it. Returns the
// owning user and TransitionOffline when this was the user's last
// connection. A connection that never announced an identity is a no-op.
func (r *Registry) Deregister(connID core.ConnID) (domain.UserID, Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.conns[connID]
	if !ok {
		return "", TransitionNone
	}
	last := r.removeLocked(connID, userID)

	log.Debug().Str("module", "app.presence").
		Str("user_id", string(userID)).Str("conn_id", string(connID)).
		Bool("last", last).Msg("deregistered connection")

	if last {
		if r.sink != nil {
			r.sink.Notify(userID, domain.StatusOffline)
		}
		return userID, TransitionOffline
	}
	return userID, TransitionNone
}

// removeLocked drops connID from userID's set and reports whether the
// set became empty. Caller holds the lock.
func (r *Registry) removeLocked(connID core.ConnID, userID domain.UserID) bool {
	delete(r.conns, connID)
	set := r.users[userID]
	for i, c := range set {
		if c == connID {
			set = append(set[:i], set[i+1:]...)
			break
		}
	}
	if len(set) == 0 {
		delete(r.users, userID)
		return true
	}
	r.users[userID] = set
	return false
}

// Lookup returns the user's live connections, oldest first. Empty when
// the user is unreachable.
func (r *Registry) Lookup(userID domain.UserID) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	out := make([]core.ConnID, len(set))
	copy(out, set)
	return out
}

// UserOf returns the identity bound to a connection, if any.
func (r *Registry) UserOf(connID core.ConnID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.conns[connID]
	return userID, ok
}

// Online returns the set of currently reachable users.
func (r *Registry) Online() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.users))
	for userID := range r.users {
		out = append(out, userID)
	}
	return out
}
