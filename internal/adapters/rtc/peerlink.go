package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/core"
)

var _ core.PeerLink = (*WebRTCLink)(nil)

// WebRTCLink implements core.PeerLink over a pion PeerConnection.
// Trickle ICE: local candidates surface through OnICECandidate as they
// are discovered rather than being gathered up front.
type WebRTCLink struct {
	pc *webrtc.PeerConnection

	mu            sync.RWMutex
	onICE         func(webrtc.ICECandidateInit)
	onTrack       func(*webrtc.TrackRemote)
	onNegotiation func()
	onConnected   func()
	onTerminal    func()

	closeOnce sync.Once
}

func DefaultWebRTCConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}

func NewWebRTCLink(cfg webrtc.Configuration) (*WebRTCLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	l := &WebRTCLink{pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if fn := l.iceHandler(); fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		l.mu.RLock()
		fn := l.onTrack
		l.mu.RUnlock()
		if fn != nil {
			fn(track)
		}
	})

	pc.OnNegotiationNeeded(func() {
		l.mu.RLock()
		fn := l.onNegotiation
		l.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_state", s.String()).Msg("peer state")
		l.mu.RLock()
		connected, terminal := l.onConnected, l.onTerminal
		l.mu.RUnlock()
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if connected != nil {
				connected()
			}
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			if terminal != nil {
				terminal()
			}
		}
	})

	return l, nil
}

func (l *WebRTCLink) iceHandler() func(webrtc.ICECandidateInit) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.onICE
}

func (l *WebRTCLink) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (l *WebRTCLink) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (l *WebRTCLink) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(desc)
}

func (l *WebRTCLink) Rollback() error {
	return l.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (l *WebRTCLink) SignalingStable() bool {
	return l.pc.SignalingState() == webrtc.SignalingStateStable
}

func (l *WebRTCLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

func (l *WebRTCLink) AddTrack(track webrtc.TrackLocal) (core.TrackSender, error) {
	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func (l *WebRTCLink) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	l.mu.Lock()
	l.onICE = fn
	l.mu.Unlock()
}

func (l *WebRTCLink) OnTrack(fn func(*webrtc.TrackRemote)) {
	l.mu.Lock()
	l.onTrack = fn
	l.mu.Unlock()
}

func (l *WebRTCLink) OnNegotiationNeeded(fn func()) {
	l.mu.Lock()
	l.onNegotiation = fn
	l.mu.Unlock()
}

func (l *WebRTCLink) OnConnected(fn func()) {
	l.mu.Lock()
	l.onConnected = fn
	l.mu.Unlock()
}

func (l *WebRTCLink) OnTerminal(fn func()) {
	l.mu.Lock()
	l.onTerminal = fn
	l.mu.Unlock()
}

func (l *WebRTCLink) Close() {
	l.closeOnce.Do(func() {
		if err := l.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Msg("closed")
		}
	})
}
