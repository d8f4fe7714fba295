// Package call implements one peer's view of an audio/video call: the
// session state machine, ICE candidate queuing, renegotiation and glare
// handling. Coupling to the transport is via the Signaler interface
// only; coupling to pion is via core.PeerLink.
package call

import (
	"errors"
	"fmt"

	"github.com/Mayank7805/QuickChat/internal/protocol"
)

// Signaler carries signaling events to the relay server. Send is
// fire-and-forget: it does not block on delivery confirmation.
type Signaler interface {
	Send(ev protocol.Event) error
}

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

// Phase is the session's lifecycle state. The initiator passes through
// ringing; the responder goes straight from connecting to connected once
// its answer is out and media flows.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseRinging
	PhaseConnected
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseRinging:
		return "ringing"
	case PhaseConnected:
		return "connected"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// EndReason explains why a session reached PhaseEnded.
type EndReason string

const (
	ReasonHangup       EndReason = "hang up"
	ReasonRemoteHangup EndReason = "remote hang up"
	ReasonPeerFailed   EndReason = "peer connection failed"
	ReasonMediaFailure EndReason = "could not access camera/microphone"
	ReasonNoAnswer     EndReason = "no answer"
	ReasonUnreachable  EndReason = "recipient unreachable"
)

var (
	ErrCallEnded      = errors.New("call already ended")
	ErrCallInProgress = errors.New("call already in progress for chat")
	ErrVideoDisabled  = errors.New("session was not started with video")
)
