package media

import "context"

// AudioNode is a node in an audio routing graph.
type AudioNode interface {
	Label() string
	// Connect routes this node's output into dst.
	Connect(dst AudioNode) error
	Disconnect()
}

// StreamDestination is a graph sink exposing its input as a stream with
// one audio track.
type StreamDestination interface {
	AudioNode
	Stream() Stream
}

// AudioContext owns an audio routing graph (like the Web Audio AudioContext).
// Closing the context releases every node created from it.
type AudioContext interface {
	// ElementSource creates a source node from a media element. An element
	// can back at most one source node.
	ElementSource(el MediaElement) (AudioNode, error)
	// StreamSource creates a source node from the audio tracks of s.
	StreamSource(s Stream) (AudioNode, error)
	Gain(level float64) (AudioNode, error)
	StreamDestination() (StreamDestination, error)
	// Output is the live output device (speakers).
	Output() AudioNode
	Close() error
}

// AudioBuffer is decoded PCM, one float32 slice per channel in [-1,1].
type AudioBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// Duration returns the length of the buffer in seconds.
func (b *AudioBuffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 || len(b.Channels) == 0 {
		return 0
	}
	return float64(len(b.Channels[0])) / float64(b.SampleRate)
}

// AudioDecoder decodes an encoded audio file into PCM.
type AudioDecoder interface {
	DecodeAudioData(ctx context.Context, data []byte) (*AudioBuffer, error)
}
