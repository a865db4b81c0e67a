package media

import "time"

// EncoderState mirrors the MediaRecorder state.
type EncoderState int

const (
	EncoderInactive EncoderState = iota
	EncoderRecording
	EncoderPaused
)

func (s EncoderState) String() string {
	switch s {
	case EncoderRecording:
		return "recording"
	case EncoderPaused:
		return "paused"
	default:
		return "inactive"
	}
}

// EncoderEventType identifies an encoder event.
type EncoderEventType int

const (
	EncoderData EncoderEventType = iota
	EncoderError
	EncoderStop
)

// EncoderEvent is delivered on the encoder's event channel.
type EncoderEvent struct {
	Type EncoderEventType
	Data []byte
	Err  error
}

// Encoder encodes a stream into chunks (like MediaRecorder).
//
// Events delivers data chunks in order, at most one error, then a single
// Stop event after which the channel is closed.
type Encoder interface {
	MimeType() string
	State() EncoderState
	// Start begins encoding, emitting a data chunk every timeslice.
	Start(timeslice time.Duration) error
	Pause() error
	Resume() error
	// Stop flushes pending data and ends the session.
	Stop() error
	Events() <-chan EncoderEvent
}

// EncoderFactory negotiates and creates encoders.
type EncoderFactory interface {
	IsTypeSupported(mime string) bool
	NewEncoder(s Stream, mime string) (Encoder, error)
}
