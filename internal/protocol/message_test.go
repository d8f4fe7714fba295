package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/Mayank7805/QuickChat/internal/domain"
)

func TestDecodeDispatchesByType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind EventType
		to   domain.UserID
	}{
		{
			name: "user_join",
			raw:  `{"type":"user_join","userId":"alice"}`,
			kind: EventUserJoin,
		},
		{
			name: "offer",
			raw:  `{"type":"webrtc_offer","to":"bob","from":"alice","fromName":"Alice","chatId":"chat-1","callType":"video","offer":{"type":"offer","sdp":"v=0..."}}`,
			kind: EventOffer,
			to:   "bob",
		},
		{
			name: "answer",
			raw:  `{"type":"webrtc_answer","to":"alice","from":"bob","chatId":"chat-1","answer":{"type":"answer","sdp":"v=0..."}}`,
			kind: EventAnswer,
			to:   "alice",
		},
		{
			name: "candidate",
			raw:  `{"type":"webrtc_ice_candidate","to":"bob","candidate":{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host"}}`,
			kind: EventICECandidate,
			to:   "bob",
		},
		{
			name: "call_ended",
			raw:  `{"type":"webrtc_call_ended","to":"bob","chatId":"chat-1"}`,
			kind: EventCallEnded,
			to:   "bob",
		},
		{
			name: "status",
			raw:  `{"type":"user_status_change","userId":"alice","status":"offline"}`,
			kind: EventUserStatus,
		},
		{
			name: "ping",
			raw:  `{"type":"ping"}`,
			kind: EventPing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ev.Kind() != tt.kind {
				t.Errorf("Kind() = %q, want %q", ev.Kind(), tt.kind)
			}
			if ev.Recipient() != tt.to {
				t.Errorf("Recipient() = %q, want %q", ev.Recipient(), tt.to)
			}
		})
	}
}

func TestDecodeRejectsMalformedEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown type", `{"type":"nonsense"}`, ErrUnknownEvent},
		{"join without user", `{"type":"user_join"}`, ErrMissingSender},
		{"join with oversized user", `{"type":"user_join","userId":"` + strings.Repeat("x", domain.MaxUserIDLen+1) + `"}`, domain.ErrUserIDTooLong},
		{"offer without recipient", `{"type":"webrtc_offer","from":"alice","chatId":"c","offer":{"type":"offer","sdp":"x"}}`, ErrMissingRecipient},
		{"offer without chat", `{"type":"webrtc_offer","to":"bob","from":"alice","offer":{"type":"offer","sdp":"x"}}`, ErrMissingChat},
		{"offer without sdp", `{"type":"webrtc_offer","to":"bob","from":"alice","chatId":"c"}`, ErrEmptyDescription},
		{"candidate without payload", `{"type":"webrtc_ice_candidate","to":"bob"}`, ErrEmptyCandidate},
		{"call_ended without chat", `{"type":"webrtc_call_ended","to":"bob"}`, ErrMissingChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); !errors.Is(err, tt.want) {
				t.Errorf("Decode = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("Decode of garbage succeeded, want error")
	}
}

func TestEncodeFillsTypeTag(t *testing.T) {
	frame, err := Encode(Offer{
		To:       "bob",
		From:     "alice",
		Offer:    webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0..."},
		CallType: domain.CallAudio,
		ChatID:   "chat-1",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	ev, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode of encoded frame: %v", err)
	}
	offer, ok := ev.(Offer)
	if !ok {
		t.Fatalf("decoded as %T, want Offer", ev)
	}
	if offer.To != "bob" || offer.From != "alice" || offer.ChatID != "chat-1" {
		t.Errorf("round trip lost fields: %+v", offer)
	}
	if offer.Offer.SDP != "v=0..." {
		t.Errorf("sdp = %q, want preserved", offer.Offer.SDP)
	}
}
