// Package protocol defines the signaling events carried over the
// websocket transport. Every message is a tagged union member: an
// envelope "type" field selects the event struct, and Decode rejects
// messages whose required fields are missing, so handlers never observe
// an ill-formed event.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/Mayank7805/QuickChat/internal/domain"
)

type EventType string

const (
	EventUserJoin     EventType = "user_join"
	EventOffer        EventType = "webrtc_offer"
	EventAnswer       EventType = "webrtc_answer"
	EventICECandidate EventType = "webrtc_ice_candidate"
	EventCallEnded    EventType = "webrtc_call_ended"
	EventCallFailed   EventType = "call_failed"
	EventUserStatus   EventType = "user_status_change"
	EventPing         EventType = "ping"
	EventPong         EventType = "pong"
)

// Failure reasons surfaced to callers in CallFailed events.
const (
	ReasonUserOffline  = "User is offline"
	ReasonNotJoined    = "join required before calling"
	ReasonCallThrottle = "too many call attempts"
)

var (
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrMissingRecipient = errors.New("missing recipient")
	ErrMissingSender    = errors.New("missing sender")
	ErrMissingChat      = errors.New("missing chat id")
	ErrEmptyDescription = errors.New("empty session description")
	ErrEmptyCandidate   = errors.New("empty ice candidate")
)

// Event is one decoded signaling message.
type Event interface {
	Kind() EventType
	// Recipient returns the target UserID for routable events, "" otherwise.
	Recipient() domain.UserID
	validate() error
}

// UserJoin binds the sending connection to a user identity. Sent once by
// a client right after the transport connection opens.
type UserJoin struct {
	Type   EventType     `json:"type"`
	UserID domain.UserID `json:"userId"`
}

func (e UserJoin) Kind() EventType          { return EventUserJoin }
func (e UserJoin) Recipient() domain.UserID { return "" }
func (e UserJoin) validate() error {
	if e.UserID == "" {
		return ErrMissingSender
	}
	return e.UserID.Validate()
}

// Offer carries a session description that starts or renegotiates a call.
type Offer struct {
	Type     EventType                 `json:"type"`
	To       domain.UserID             `json:"to"`
	From     domain.UserID             `json:"from"`
	FromName string                    `json:"fromName,omitempty"`
	Offer    webrtc.SessionDescription `json:"offer"`
	CallType domain.CallType           `json:"callType,omitempty"`
	ChatID   domain.ChatID             `json:"chatId"`
}

func (e Offer) Kind() EventType          { return EventOffer }
func (e Offer) Recipient() domain.UserID { return e.To }
func (e Offer) validate() error {
	switch {
	case e.To == "":
		return ErrMissingRecipient
	case e.From == "":
		return ErrMissingSender
	case e.ChatID == "":
		return ErrMissingChat
	case e.Offer.SDP == "":
		return ErrEmptyDescription
	}
	return nil
}

type Answer struct {
	Type   EventType                 `json:"type"`
	To     domain.UserID             `json:"to"`
	From   domain.UserID             `json:"from"`
	Answer webrtc.SessionDescription `json:"answer"`
	ChatID domain.ChatID             `json:"chatId"`
}

func (e Answer) Kind() EventType          { return EventAnswer }
func (e Answer) Recipient() domain.UserID { return e.To }
func (e Answer) validate() error {
	switch {
	case e.To == "":
		return ErrMissingRecipient
	case e.From == "":
		return ErrMissingSender
	case e.ChatID == "":
		return ErrMissingChat
	case e.Answer.SDP == "":
		return ErrEmptyDescription
	}
	return nil
}

type ICECandidate struct {
	Type      EventType               `json:"type"`
	To        domain.UserID           `json:"to"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (e ICECandidate) Kind() EventType          { return EventICECandidate }
func (e ICECandidate) Recipient() domain.UserID { return e.To }
func (e ICECandidate) validate() error {
	if e.To == "" {
		return ErrMissingRecipient
	}
	if e.Candidate.Candidate == "" {
		return ErrEmptyCandidate
	}
	return nil
}

type CallEnded struct {
	Type   EventType     `json:"type"`
	To     domain.UserID `json:"to"`
	ChatID domain.ChatID `json:"chatId"`
}

func (e CallEnded) Kind() EventType          { return EventCallEnded }
func (e CallEnded) Recipient() domain.UserID { return e.To }
func (e CallEnded) validate() error {
	if e.To == "" {
		return ErrMissingRecipient
	}
	if e.ChatID == "" {
		return ErrMissingChat
	}
	return nil
}

// CallFailed is the single synchronous failure path: the server emits it
// back to a sender whose message could not be delivered.
type CallFailed struct {
	Type   EventType `json:"type"`
	Reason string    `json:"reason"`
}

func (e CallFailed) Kind() EventType          { return EventCallFailed }
func (e CallFailed) Recipient() domain.UserID { return "" }
func (e CallFailed) validate() error          { return nil }

// UserStatusChange is broadcast when a user's aggregate presence flips.
type UserStatusChange struct {
	Type   EventType     `json:"type"`
	UserID domain.UserID `json:"userId"`
	Status domain.Status `json:"status"`
}

func (e UserStatusChange) Kind() EventType          { return EventUserStatus }
func (e UserStatusChange) Recipient() domain.UserID { return "" }
func (e UserStatusChange) validate() error {
	if e.UserID == "" {
		return ErrMissingSender
	}
	return nil
}

type Ping struct {
	Type EventType `json:"type"`
}

func (e Ping) Kind() EventType          { return EventPing }
func (e Ping) Recipient() domain.UserID { return "" }
func (e Ping) validate() error          { return nil }

type Pong struct {
	Type EventType `json:"type"`
}

func (e Pong) Kind() EventType          { return EventPong }
func (e Pong) Recipient() domain.UserID { return "" }
func (e Pong) validate() error          { return nil }

// Decode parses one wire frame into its typed event. Unknown types and
// events missing required fields come back as errors, never as partially
// filled values.
func Decode(data []byte) (Event, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	var ev Event
	switch env.Type {
	case EventUserJoin:
		ev = decodeInto[UserJoin](data)
	case EventOffer:
		ev = decodeInto[Offer](data)
	case EventAnswer:
		ev = decodeInto[Answer](data)
	case EventICECandidate:
		ev = decodeInto[ICECandidate](data)
	case EventCallEnded:
		ev = decodeInto[CallEnded](data)
	case EventCallFailed:
		ev = decodeInto[CallFailed](data)
	case EventUserStatus:
		ev = decodeInto[UserStatusChange](data)
	case EventPing:
		ev = Ping{Type: EventPing}
	case EventPong:
		ev = Pong{Type: EventPong}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	if ev == nil {
		return nil, fmt.Errorf("decoding %s payload", env.Type)
	}
	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", env.Type, err)
	}
	return ev, nil
}

func decodeInto[T Event](data []byte) Event {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	return v
}

// Encode renders an event as a wire frame. The concrete structs carry
// their own type tag; Encode fills it in so call sites cannot forget.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(withType(ev))
}

func withType(ev Event) Event {
	switch v := ev.(type) {
	case UserJoin:
		v.Type = EventUserJoin
		return v
	case Offer:
		v.Type = EventOffer
		return v
	case Answer:
		v.Type = EventAnswer
		return v
	case ICECandidate:
		v.Type = EventICECandidate
		return v
	case CallEnded:
		v.Type = EventCallEnded
		return v
	case CallFailed:
		v.Type = EventCallFailed
		return v
	case UserStatusChange:
		v.Type = EventUserStatus
		return v
	case Ping:
		v.Type = EventPing
		return v
	case Pong:
		v.Type = EventPong
		return v
	default:
		return ev
	}
}
