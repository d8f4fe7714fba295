package core

import (
	"github.com/pion/webrtc/v4"
)

// TrackSender is the writable end of one outgoing media line. Track
// replacement goes through here so a toggle never adds a second sender.
type TrackSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// PeerLink is the direct peer-to-peer connection each call session owns
// locally. The rtc adapter implements it over pion; tests use fakes.
type PeerLink interface {
	// Close should stop all underlying media resources.
	Close()

	// CreateOffer creates a local offer and applies it as the local
	// description before returning it.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer against the current remote offer and
	// applies it as the local description before returning it.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback discards a locally applied offer that was never answered.
	Rollback() error
	// SignalingStable reports whether no offer/answer exchange is in flight.
	SignalingStable() bool

	// AddICECandidate applies a remote ICE candidate. The remote
	// description must already be set.
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (TrackSender, error)

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote))
	// OnNegotiationNeeded sets a callback fired when the media set changed
	// and a fresh offer/answer exchange is required.
	OnNegotiationNeeded(func())
	// OnConnected fires once the link reports a connected transport.
	OnConnected(func())
	// OnTerminal fires when the link reaches failed, disconnected or closed.
	OnTerminal(func())
}
