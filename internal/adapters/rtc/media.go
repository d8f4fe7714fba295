package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Mayank7805/QuickChat/internal/core"
)

var _ core.MediaSource = (*SyntheticSource)(nil)

const (
	frameInterval = 20 * time.Millisecond
	audioTSStep   = 960  // 48kHz * 20ms
	videoTSStep   = 1800 // 90kHz * 20ms
)

// SyntheticSource implements core.MediaSource without touching capture
// hardware: each acquired track is a TrackLocalStaticRTP fed by a
// generator goroutine. Used by headless clients and anywhere real
// devices are unavailable.
type SyntheticSource struct {
	mu      sync.Mutex
	writers map[webrtc.TrackLocal]context.CancelFunc
	closed  bool
}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		writers: make(map[webrtc.TrackLocal]context.CancelFunc),
	}
}

func (s *SyntheticSource) Acquire(ctx context.Context, kind core.MediaKind) (webrtc.TrackLocal, error) {
	var capability webrtc.RTPCodecCapability
	var tsStep uint32
	switch kind {
	case core.MediaVideo:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
		tsStep = videoTSStep
	default:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
		tsStep = audioTSStep
	}

	track, err := webrtc.NewTrackLocalStaticRTP(capability, string(kind)+"-"+uuid.NewString(), "synthetic")
	if err != nil {
		return nil, err
	}

	writerCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, context.Canceled
	}
	s.writers[track] = cancel
	s.mu.Unlock()

	go s.loop(writerCtx, track, tsStep)

	// Honour a caller that gave up while we were setting up.
	select {
	case <-ctx.Done():
		s.Release(track)
		return nil, ctx.Err()
	default:
	}
	return track, nil
}

// loop pushes placeholder RTP packets at frame rate until the track is
// released.
func (s *SyntheticSource) loop(ctx context.Context, track *webrtc.TrackLocalStaticRTP, tsStep uint32) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version: 2,
		},
		Payload: make([]byte, 8),
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pkt.SequenceNumber++
			pkt.Timestamp += tsStep
			if err := track.WriteRTP(pkt); err != nil {
				log.Debug().Err(err).Str("module", "rtc").
					Str("track_id", track.ID()).Msg("synthetic write RTP error, stopping")
				return
			}
		}
	}
}

func (s *SyntheticSource) Release(track webrtc.TrackLocal) {
	if track == nil {
		return
	}
	s.mu.Lock()
	cancel, ok := s.writers[track]
	if ok {
		delete(s.writers, track)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *SyntheticSource) Close() {
	s.mu.Lock()
	s.closed = true
	writers := s.writers
	s.writers = make(map[webrtc.TrackLocal]context.CancelFunc)
	s.mu.Unlock()
	for _, cancel := range writers {
		cancel()
	}
}
