package call

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

type fakeSignaler struct {
	mu     sync.Mutex
	events []protocol.Event
	err    error
}

func (s *fakeSignaler) Send(ev protocol.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSignaler) sent() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *fakeSignaler) countKind(kind protocol.EventType) int {
	n := 0
	for _, ev := range s.sent() {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

type fakeTrack struct {
	id   string
	kind webrtc.RTPCodecType
}

func (t *fakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (t *fakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (t *fakeTrack) ID() string                            { return t.id }
func (t *fakeTrack) RID() string                           { return "" }
func (t *fakeTrack) StreamID() string                      { return "fake" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType             { return t.kind }

type fakeTrackSender struct {
	mu       sync.Mutex
	replaced []webrtc.TrackLocal
}

func (s *fakeTrackSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced = append(s.replaced, track)
	return nil
}

func (s *fakeTrackSender) replacements() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webrtc.TrackLocal, len(s.replaced))
	copy(out, s.replaced)
	return out
}

type fakeLink struct {
	mu sync.Mutex

	remoteDescs []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	tracks      []webrtc.TrackLocal
	senders     []*fakeTrackSender
	offers      int
	answers     int
	rollbacks   int
	closes      int
	unstable    bool

	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(*webrtc.TrackRemote)
	onNegotiate func()
	onConnected func()
	onTerminal  func()
}

var _ core.PeerLink = (*fakeLink)(nil)

func (l *fakeLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (l *fakeLink) SetRemoteDescription(desc webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteDescs = append(l.remoteDescs, desc)
	return nil
}

func (l *fakeLink) Rollback() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollbacks++
	return nil
}

func (l *fakeLink) SignalingStable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.unstable
}

func (l *fakeLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.remoteDescs) == 0 {
		return errors.New("no remote description")
	}
	l.candidates = append(l.candidates, ci)
	return nil
}

func (l *fakeLink) AddTrack(track webrtc.TrackLocal) (core.TrackSender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, track)
	sender := &fakeTrackSender{}
	l.senders = append(l.senders, sender)
	return sender, nil
}

func (l *fakeLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) { l.onCandidate = fn }
func (l *fakeLink) OnTrack(fn func(*webrtc.TrackRemote))           { l.onTrack = fn }
func (l *fakeLink) OnNegotiationNeeded(fn func())                  { l.onNegotiate = fn }
func (l *fakeLink) OnConnected(fn func())                          { l.onConnected = fn }
func (l *fakeLink) OnTerminal(fn func())                           { l.onTerminal = fn }

func (l *fakeLink) appliedCandidates() []webrtc.ICECandidateInit {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(l.candidates))
	copy(out, l.candidates)
	return out
}

func (l *fakeLink) counters() (offers, answers, rollbacks, closes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offers, l.answers, l.rollbacks, l.closes
}

type fakeMedia struct {
	mu       sync.Mutex
	acquired []*fakeTrack
	released []webrtc.TrackLocal
	failKind core.MediaKind
}

func (m *fakeMedia) Acquire(_ context.Context, kind core.MediaKind) (webrtc.TrackLocal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKind == kind {
		return nil, errors.New("device unavailable")
	}
	codec := webrtc.RTPCodecTypeAudio
	if kind == core.MediaVideo {
		codec = webrtc.RTPCodecTypeVideo
	}
	track := &fakeTrack{id: string(kind), kind: codec}
	m.acquired = append(m.acquired, track)
	return track, nil
}

func (m *fakeMedia) Release(track webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, track)
}

func (m *fakeMedia) Close() {}

func (m *fakeMedia) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.released)
}
