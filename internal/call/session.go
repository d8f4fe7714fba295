package call

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/core"
	"github.com/Mayank7805/QuickChat/internal/domain"
	"github.com/Mayank7805/QuickChat/internal/protocol"
)

// Session is one peer's call state machine. The two sides of a call are
// correlated only by the shared chat token; they never share state.
//
// Lock discipline: the mutex guards phase and negotiation bookkeeping
// only. Peer-link operations run outside the lock because the link may
// invoke callbacks synchronously.
type Session struct {
	chatID   domain.ChatID
	selfID   domain.UserID
	selfName string
	peerID   domain.UserID
	callType domain.CallType
	role     Role

	sig   Signaler
	link  core.PeerLink
	media core.MediaSource

	mu            sync.Mutex
	phase         Phase
	remoteDescSet bool
	negotiating   bool
	pending       []webrtc.ICECandidateInit
	audioTrack    webrtc.TrackLocal
	videoTrack    webrtc.TrackLocal
	audioSender   core.TrackSender
	videoSender   core.TrackSender
	ringTimer     *time.Timer

	ringTimeout time.Duration
	endOnce     sync.Once
	endReason   EndReason
	onEnd       []func(EndReason)
	onPhase     func(Phase)
}

func newSession(chatID domain.ChatID, selfID domain.UserID, selfName string, peerID domain.UserID, callType domain.CallType, role Role, sig Signaler, link core.PeerLink, media core.MediaSource, ringTimeout time.Duration) *Session {
	s := &Session{
		chatID:      chatID,
		selfID:      selfID,
		selfName:    selfName,
		peerID:      peerID,
		callType:    callType,
		role:        role,
		sig:         sig,
		link:        link,
		media:       media,
		phase:       PhaseConnecting,
		ringTimeout: ringTimeout,
	}
	s.bindLink()
	return s
}

func (s *Session) ChatID() domain.ChatID { return s.chatID }
func (s *Session) Peer() domain.UserID   { return s.peerID }
func (s *Session) Role() Role            { return s.role }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// OnEnd registers a callback fired exactly once when the session ends,
// whatever the trigger. Callbacks accumulate. Registering after the end
// fires the callback immediately.
func (s *Session) OnEnd(fn func(EndReason)) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		reason := s.endReason
		s.mu.Unlock()
		fn(reason)
		return
	}
	s.onEnd = append(s.onEnd, fn)
	s.mu.Unlock()
}

// OnPhase registers a callback fired on visible phase changes.
func (s *Session) OnPhase(fn func(Phase)) { s.onPhase = fn }

func (s *Session) bindLink() {
	s.link.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		// Local candidates go out the moment they are discovered; order
		// does not matter on the receiving side.
		if err := s.sig.Send(protocol.ICECandidate{To: s.peerID, Candidate: ci}); err != nil {
			log.Warn().Err(err).Str("module", "call").
				Str("chat_id", string(s.chatID)).Msg("candidate send drop")
		}
	})
	s.link.OnTrack(func(_ *webrtc.TrackRemote) {
		s.markConnected("remote track")
	})
	s.link.OnConnected(func() {
		s.markConnected("link connected")
	})
	s.link.OnTerminal(func() {
		s.end(ReasonPeerFailed, true)
	})
	s.link.OnNegotiationNeeded(func() {
		s.renegotiate()
	})
}

// start drives the initiator side: acquire media, send the opening
// offer, arm the ringing timeout. Media failure ends the session before
// any signaling reaches the peer.
func (s *Session) start(ctx context.Context) error {
	if err := s.acquireMedia(ctx); err != nil {
		s.end(ReasonMediaFailure, false)
		return err
	}

	s.mu.Lock()
	s.negotiating = true
	s.mu.Unlock()

	offer, err := s.link.CreateOffer()
	if err != nil {
		s.end(ReasonPeerFailed, false)
		return err
	}
	if err := s.sig.Send(protocol.Offer{
		To:       s.peerID,
		From:     s.selfID,
		FromName: s.selfName,
		Offer:    offer,
		CallType: s.callType,
		ChatID:   s.chatID,
	}); err != nil {
		s.end(ReasonPeerFailed, false)
		return err
	}

	s.mu.Lock()
	ringing := s.phase == PhaseConnecting
	if ringing {
		s.phase = PhaseRinging
		if s.ringTimeout > 0 {
			s.ringTimer = time.AfterFunc(s.ringTimeout, s.onRingTimeout)
		}
	}
	s.mu.Unlock()
	if ringing {
		s.notifyPhase(PhaseRinging)
	}

	log.Info().Str("module", "call").
		Str("chat_id", string(s.chatID)).Str("to", string(s.peerID)).
		Str("call_type", string(s.callType)).Msg("offer sent")
	return nil
}

// accept drives the responder side against the initiator's opening offer.
func (s *Session) accept(ctx context.Context, offer webrtc.SessionDescription) error {
	if err := s.acquireMedia(ctx); err != nil {
		s.end(ReasonMediaFailure, false)
		return err
	}
	if err := s.applyRemoteOffer(offer); err != nil {
		s.end(ReasonPeerFailed, true)
		return err
	}
	return nil
}

// acquireMedia obtains local capture for the session's call type and
// attaches it to the link. If the session was torn down while a capture
// was still being acquired, the late track is released, never attached.
func (s *Session) acquireMedia(ctx context.Context) error {
	audio, err := s.media.Acquire(ctx, core.MediaAudio)
	if err != nil {
		return err
	}
	if s.Phase() == PhaseEnded {
		s.media.Release(audio)
		return ErrCallEnded
	}
	audioSender, err := s.link.AddTrack(audio)
	if err != nil {
		s.media.Release(audio)
		return err
	}
	s.mu.Lock()
	s.audioTrack = audio
	s.audioSender = audioSender
	s.mu.Unlock()

	if s.callType != domain.CallVideo {
		return nil
	}

	video, err := s.media.Acquire(ctx, core.MediaVideo)
	if err != nil {
		return err
	}
	if s.Phase() == PhaseEnded {
		s.media.Release(video)
		return ErrCallEnded
	}
	videoSender, err := s.link.AddTrack(video)
	if err != nil {
		s.media.Release(video)
		return err
	}
	s.mu.Lock()
	s.videoTrack = video
	s.videoSender = videoSender
	s.mu.Unlock()
	return nil
}

// HandleAnswer applies the peer's answer and flushes any candidates that
// arrived early. A late or duplicate answer when the exchange is already
// settled is dropped with a log line, not an error: duplicates are
// expected under glare.
func (s *Session) HandleAnswer(desc webrtc.SessionDescription) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return
	}
	if s.remoteDescSet && !s.negotiating {
		s.mu.Unlock()
		log.Debug().Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("late answer dropped")
		return
	}
	s.mu.Unlock()

	if err := s.link.SetRemoteDescription(desc); err != nil {
		log.Warn().Err(err).Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("applying answer")
		return
	}
	s.finishExchange()
}

// HandleOffer processes an offer arriving on an existing session, i.e. a
// renegotiation. If our own offer is outstanding this is glare: the
// lexicographically smaller user ID is the canonical offerer, so the
// other side rolls its offer back and answers.
func (s *Session) HandleOffer(desc webrtc.SessionDescription) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return
	}
	outstanding := s.negotiating
	s.mu.Unlock()

	if outstanding {
		if s.selfID < s.peerID {
			// We are the canonical offerer; the peer will answer ours.
			log.Info().Str("module", "call").
				Str("chat_id", string(s.chatID)).Msg("glare: ignoring peer offer")
			return
		}
		log.Info().Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("glare: rolling back local offer")
		if err := s.link.Rollback(); err != nil {
			log.Warn().Err(err).Str("module", "call").
				Str("chat_id", string(s.chatID)).Msg("rollback failed")
			return
		}
		s.mu.Lock()
		s.negotiating = false
		s.mu.Unlock()
	}

	if err := s.applyRemoteOffer(desc); err != nil {
		log.Warn().Err(err).Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("applying renegotiation offer")
	}
}

// applyRemoteOffer sets the remote offer, flushes queued candidates and
// sends back an answer.
func (s *Session) applyRemoteOffer(desc webrtc.SessionDescription) error {
	if err := s.link.SetRemoteDescription(desc); err != nil {
		return err
	}
	s.finishExchange()

	answer, err := s.link.CreateAnswer()
	if err != nil {
		return err
	}
	return s.sig.Send(protocol.Answer{
		To:     s.peerID,
		From:   s.selfID,
		Answer: answer,
		ChatID: s.chatID,
	})
}

// finishExchange marks the remote description applied and drains the
// candidate queue in receipt order. Candidates that arrive while the
// drain runs see remoteDescSet already true and apply directly, so
// nothing is ever applied before the description or out of order.
func (s *Session) finishExchange() {
	s.mu.Lock()
	s.remoteDescSet = true
	s.negotiating = false
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, ci := range pending {
		if err := s.link.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "call").
				Str("chat_id", string(s.chatID)).Msg("flushing queued candidate")
		}
	}
}

// HandleCandidate applies a remote candidate, or queues it while the
// remote description is not yet set. Applying before the description
// exists is an error condition that must never occur; the queue is what
// prevents it.
func (s *Session) HandleCandidate(ci webrtc.ICECandidateInit) {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return
	}
	if !s.remoteDescSet {
		s.pending = append(s.pending, ci)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.link.AddICECandidate(ci); err != nil {
		log.Warn().Err(err).Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("applying candidate")
	}
}

// HandleCallEnded reacts to the peer hanging up.
func (s *Session) HandleCallEnded() {
	s.end(ReasonRemoteHangup, false)
}

// HandleCallFailed reacts to the relay reporting the peer unreachable
// (or another delivery failure).
func (s *Session) HandleCallFailed(reason string) {
	r := ReasonUnreachable
	if reason != "" {
		r = EndReason(reason)
	}
	s.end(r, false)
}

// Hangup tears the session down on local user action. Valid in any
// phase; in-flight media acquisition is observed and discarded by
// acquireMedia's post-acquire phase check.
func (s *Session) Hangup() {
	s.end(ReasonHangup, true)
}

func (s *Session) onRingTimeout() {
	s.mu.Lock()
	ringing := s.phase == PhaseRinging
	s.mu.Unlock()
	if ringing {
		log.Info().Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("ringing timed out")
		s.end(ReasonNoAnswer, true)
	}
}

// renegotiate responds to the link reporting a changed media set. One
// offer per trigger: if an exchange is already in flight the trigger is
// dropped, because re-offering on an unstable state corrupts the
// offer/answer sequence.
func (s *Session) renegotiate() {
	s.mu.Lock()
	if s.phase == PhaseEnded || s.negotiating {
		suppressed := s.negotiating
		s.mu.Unlock()
		if suppressed {
			log.Debug().Str("module", "call").
				Str("chat_id", string(s.chatID)).Msg("renegotiation already in flight, trigger dropped")
		}
		return
	}
	if !s.link.SignalingStable() {
		s.mu.Unlock()
		log.Debug().Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("link mid-exchange, trigger dropped")
		return
	}
	s.negotiating = true
	s.mu.Unlock()

	offer, err := s.link.CreateOffer()
	if err != nil {
		log.Warn().Err(err).Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("renegotiation offer")
		s.mu.Lock()
		s.negotiating = false
		s.mu.Unlock()
		return
	}
	if err := s.sig.Send(protocol.Offer{
		To:       s.peerID,
		From:     s.selfID,
		FromName: s.selfName,
		Offer:    offer,
		CallType: s.callType,
		ChatID:   s.chatID,
	}); err != nil {
		log.Warn().Err(err).Str("module", "call").
			Str("chat_id", string(s.chatID)).Msg("renegotiation offer send drop")
		s.mu.Lock()
		s.negotiating = false
		s.mu.Unlock()
	}
}

// SetVideo toggles the outgoing video track mid-call. Turning video back
// on acquires a fresh capture and replaces the track on the existing
// sender, never adding a second one; the replacement drives the link's
// negotiation-needed path. A failed re-acquire leaves the call running
// audio-only and returns the error.
func (s *Session) SetVideo(ctx context.Context, enabled bool) error {
	if s.callType != domain.CallVideo {
		return ErrVideoDisabled
	}
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return ErrCallEnded
	}
	current := s.videoTrack
	sender := s.videoSender
	s.mu.Unlock()

	if !enabled {
		if current == nil {
			return nil
		}
		if sender != nil {
			if err := sender.ReplaceTrack(nil); err != nil {
				return err
			}
		}
		s.media.Release(current)
		s.mu.Lock()
		s.videoTrack = nil
		s.mu.Unlock()
		return nil
	}

	if current != nil {
		return nil
	}
	track, err := s.media.Acquire(ctx, core.MediaVideo)
	if err != nil {
		return err
	}
	if s.Phase() == PhaseEnded {
		s.media.Release(track)
		return ErrCallEnded
	}

	if sender == nil {
		sender, err = s.link.AddTrack(track)
		if err != nil {
			s.media.Release(track)
			return err
		}
	} else if err := sender.ReplaceTrack(track); err != nil {
		s.media.Release(track)
		return err
	}

	s.mu.Lock()
	s.videoTrack = track
	s.videoSender = sender
	s.mu.Unlock()
	return nil
}

func (s *Session) markConnected(trigger string) {
	s.mu.Lock()
	if s.phase != PhaseConnecting && s.phase != PhaseRinging {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseConnected
	timer := s.ringTimer
	s.ringTimer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	log.Info().Str("module", "call").
		Str("chat_id", string(s.chatID)).Str("trigger", trigger).Msg("connected")
	s.notifyPhase(PhaseConnected)
}

// end is the single teardown path. Local media is released and the link
// closed exactly once, whichever trigger fired first; notifyPeer sends a
// best-effort call_ended for locally originated terminations.
func (s *Session) end(reason EndReason, notifyPeer bool) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseEnded
		s.endReason = reason
		timer := s.ringTimer
		s.ringTimer = nil
		audio, video := s.audioTrack, s.videoTrack
		s.audioTrack, s.videoTrack = nil, nil
		callbacks := s.onEnd
		s.onEnd = nil
		s.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if audio != nil {
			s.media.Release(audio)
		}
		if video != nil {
			s.media.Release(video)
		}
		s.link.Close()

		if notifyPeer {
			if err := s.sig.Send(protocol.CallEnded{To: s.peerID, ChatID: s.chatID}); err != nil {
				log.Debug().Err(err).Str("module", "call").
					Str("chat_id", string(s.chatID)).Msg("call_ended notify drop")
			}
		}

		log.Info().Str("module", "call").
			Str("chat_id", string(s.chatID)).Str("reason", string(reason)).Msg("call ended")
		s.notifyPhase(PhaseEnded)
		for _, fn := range callbacks {
			fn(reason)
		}
	})
}

func (s *Session) notifyPhase(p Phase) {
	if s.onPhase != nil {
		s.onPhase(p)
	}
}
