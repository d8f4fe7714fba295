package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaKind selects which capture a call session asks for.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// MediaSource abstracts local capture hardware. Acquire may block on a
// permission prompt, so it takes a context; a session that was cancelled
// mid-acquire must Release the track instead of attaching it.
type MediaSource interface {
	Acquire(ctx context.Context, kind MediaKind) (webrtc.TrackLocal, error)
	// Release stops the capture backing the track. Releasing a track that
	// was already released is a no-op.
	Release(track webrtc.TrackLocal)
	Close()
}
