package media

import (
	"context"
	"time"
)

// Blob is an encoded media payload with its container mime type.
type Blob struct {
	Data     []byte
	MimeType string
}

// Size returns the payload length in bytes.
func (b Blob) Size() int { return len(b.Data) }

// Empty reports whether the blob carries no data.
func (b Blob) Empty() bool { return len(b.Data) == 0 }

// Size is a pixel size.
type Size struct {
	Width  int
	Height int
}

// MediaElement is a playable media source (like HTMLMediaElement).
type MediaElement interface {
	Source() string
	Duration() time.Duration
	// VideoSize is zero for audio-only elements.
	VideoSize() Size
	// Seek blocks until the seek has completed.
	Seek(ctx context.Context, pos time.Duration) error
	Play() error
	Pause()
	Paused() bool
	Ended() bool
	CurrentTime() time.Duration
	Close() error
}

// Surface is an offscreen drawing surface (like a canvas) that can be
// captured as a video stream.
type Surface interface {
	Size() Size
	// Draw paints the element's current frame.
	Draw(el MediaElement) error
	CaptureStream(fps int) (Stream, error)
	Close() error
}
