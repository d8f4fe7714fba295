package call

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

// LinkFactory builds a fresh peer link for each session. Sessions never
// share links; a second call gets a second factory invocation.
type LinkFactory func() (core.PeerLink, error)

// IncomingCall is a ringing offer surfaced to the application. Exactly
// one of Accept or Reject should be invoked; the other becomes a no-op.
type IncomingCall struct {
	ChatID   domain.ChatID
	From     domain.UserID
	FromName string
	CallType domain.CallType

	// Accept creates the session, acquires local media and answers.
	Accept func(ctx context.Context) (*Session, error)
	// Reject declines without creating a session; the caller sees a
	// call_ended.
	Reject func()
}

// Manager owns all live sessions for one local user and routes decoded
// signaling events to them. It is the single writer of the session
// table.
type Manager struct {
	self domain.User

	sig      Signaler
	media    core.MediaSource
	newLink  LinkFactory
	ringFor  time.Duration

	mu       sync.Mutex
	sessions map[domain.ChatID]*Session
	ringing  map[domain.ChatID]IncomingCall

	onIncoming func(IncomingCall)
	onStatus   func(domain.UserID, domain.Status)
}

func NewManager(self domain.User, sig Signaler, media core.MediaSource, newLink LinkFactory, ringTimeout time.Duration) *Manager {
	return &Manager{
		self:     self,
		sig:      sig,
		media:    media,
		newLink:  newLink,
		ringFor:  ringTimeout,
		sessions: make(map[domain.ChatID]*Session),
		ringing:  make(map[domain.ChatID]IncomingCall),
	}
}

// OnIncoming registers the ring handler. Without one, incoming offers
// are rejected.
func (m *Manager) OnIncoming(fn func(IncomingCall)) { m.onIncoming = fn }

// OnStatus registers a presence observer for user_status_change events.
func (m *Manager) OnStatus(fn func(domain.UserID, domain.Status)) { m.onStatus = fn }

// StartCall dials a peer. One session per chat: a second StartCall for
// the same chat while the first is live returns ErrCallInProgress.
func (m *Manager) StartCall(ctx context.Context, chatID domain.ChatID, peer domain.UserID, callType domain.CallType) (*Session, error) {
	link, err := m.newLink()
	if err != nil {
		return nil, err
	}
	s := newSession(chatID, m.self.ID, m.self.Username, peer, callType, RoleInitiator, m.sig, link, m.media, m.ringFor)

	m.mu.Lock()
	if _, live := m.sessions[chatID]; live {
		m.mu.Unlock()
		link.Close()
		return nil, ErrCallInProgress
	}
	m.sessions[chatID] = s
	m.mu.Unlock()

	s.OnEnd(func(EndReason) { m.forget(chatID, s) })
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Dispatch routes one decoded signaling event. Events for chats with no
// session and no pending ring are logged and dropped; the relay gives no
// ordering guarantee against teardown, so strays are normal.
func (m *Manager) Dispatch(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Offer:
		m.dispatchOffer(e)
	case protocol.Answer:
		if s := m.session(e.ChatID); s != nil {
			s.HandleAnswer(e.Answer)
		} else {
			m.logStray("answer", e.ChatID)
		}
	case protocol.ICECandidate:
		// Candidates carry no chat token on the wire; they belong to
		// the single session negotiating with that peer.
		if s := m.sessionByPeer(e.To); s != nil {
			s.HandleCandidate(e.Candidate)
		}
	case protocol.CallEnded:
		m.dispatchEnded(e.ChatID)
	case protocol.CallFailed:
		if s := m.soleSession(); s != nil {
			s.HandleCallFailed(e.Reason)
		}
	case protocol.UserStatusChange:
		if m.onStatus != nil {
			m.onStatus(e.UserID, e.Status)
		}
	case protocol.Pong:
	default:
		log.Debug().Str("module", "call").
			Str("event", string(ev.Kind())).Msg("unhandled event")
	}
}

func (m *Manager) dispatchOffer(e protocol.Offer) {
	if s := m.session(e.ChatID); s != nil {
		s.HandleOffer(e.Offer)
		return
	}

	inc := IncomingCall{
		ChatID:   e.ChatID,
		From:     e.From,
		FromName: e.FromName,
		CallType: e.CallType,
	}
	var once sync.Once
	inc.Accept = func(ctx context.Context) (*Session, error) {
		var s *Session
		var err error
		once.Do(func() { s, err = m.accept(ctx, e) })
		if s == nil && err == nil {
			err = ErrCallEnded
		}
		return s, err
	}
	inc.Reject = func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.ringing, e.ChatID)
			m.mu.Unlock()
			if err := m.sig.Send(protocol.CallEnded{To: e.From, ChatID: e.ChatID}); err != nil {
				log.Debug().Err(err).Str("module", "call").
					Str("chat_id", string(e.ChatID)).Msg("reject notify drop")
			}
		})
	}

	m.mu.Lock()
	m.ringing[e.ChatID] = inc
	m.mu.Unlock()

	if m.onIncoming == nil {
		inc.Reject()
		return
	}
	log.Info().Str("module", "call").
		Str("chat_id", string(e.ChatID)).Str("from", string(e.From)).
		Str("call_type", string(e.CallType)).Msg("incoming call")
	m.onIncoming(inc)
}

func (m *Manager) accept(ctx context.Context, e protocol.Offer) (*Session, error) {
	link, err := m.newLink()
	if err != nil {
		return nil, err
	}
	s := newSession(e.ChatID, m.self.ID, m.self.Username, e.From, e.CallType, RoleResponder, m.sig, link, m.media, 0)

	m.mu.Lock()
	delete(m.ringing, e.ChatID)
	if _, live := m.sessions[e.ChatID]; live {
		m.mu.Unlock()
		link.Close()
		return nil, ErrCallInProgress
	}
	m.sessions[e.ChatID] = s
	m.mu.Unlock()

	s.OnEnd(func(EndReason) { m.forget(e.ChatID, s) })
	if err := s.accept(ctx, e.Offer); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) dispatchEnded(chatID domain.ChatID) {
	m.mu.Lock()
	_, wasRinging := m.ringing[chatID]
	if wasRinging {
		delete(m.ringing, chatID)
	}
	m.mu.Unlock()

	if wasRinging {
		// Caller gave up before we answered; collapse the ring without
		// echoing a call_ended back.
		log.Info().Str("module", "call").
			Str("chat_id", string(chatID)).Msg("ring cancelled by caller")
		return
	}
	if s := m.session(chatID); s != nil {
		s.HandleCallEnded()
	} else {
		m.logStray("call_ended", chatID)
	}
}

// Close tears down every live session, e.g. on signaling loss or app
// shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.ringing = make(map[domain.ChatID]IncomingCall)
	m.mu.Unlock()

	for _, s := range live {
		s.end(ReasonHangup, false)
	}
}

func (m *Manager) session(chatID domain.ChatID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[chatID]
}

func (m *Manager) sessionByPeer(_ domain.UserID) *Session {
	return m.soleSession()
}

// soleSession returns the only live session, nil when there are none or
// several. Events without a chat token are only routable when exactly
// one candidate exists.
func (m *Manager) soleSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) != 1 {
		return nil
	}
	for _, s := range m.sessions {
		return s
	}
	return nil
}

func (m *Manager) forget(chatID domain.ChatID, s *Session) {
	m.mu.Lock()
	if m.sessions[chatID] == s {
		delete(m.sessions, chatID)
	}
	m.mu.Unlock()
}

func (m *Manager) logStray(event string, chatID domain.ChatID) {
	log.Debug().Str("module", "call").
		Str("event", event).Str("chat_id", string(chatID)).Msg("no session for event")
}
