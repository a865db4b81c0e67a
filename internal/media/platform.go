package media

import "context"

// Platform bundles the media facilities the capture pipeline runs on.
type Platform interface {
	Devices() Devices
	Encoders() EncoderFactory
	NewAudioContext() (AudioContext, error)
	Decoder() AudioDecoder

	// LoadElement opens an encoded blob for playback and waits until its
	// metadata (duration, size) is known.
	LoadElement(ctx context.Context, b Blob) (MediaElement, error)
	// NewAudioElement opens an audio file by URL or path.
	NewAudioElement(ctx context.Context, src string) (MediaElement, error)
	NewSurface(size Size) (Surface, error)

	Name() string
}
