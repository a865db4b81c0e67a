package virtual

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// encoder writes frames of the stream's first video track into a container
// and emits the bytes as chunks every timeslice. Frames arriving while
// paused are dropped.
type encoder struct {
	p      *Platform
	stream media.Stream
	mime   string

	mu         sync.Mutex
	state      media.EncoderState
	pending    bytes.Buffer
	header     containerHeader
	headerSent bool
	frames     int
	chunks     int
	unsub      []func()
	started    bool

	events chan media.EncoderEvent
	stop   chan struct{}
}

func newEncoder(p *Platform, s media.Stream, mime string) *encoder {
	return &encoder{
		p:      p,
		stream: s,
		mime:   mime,
		events: make(chan media.EncoderEvent, 64),
		stop:   make(chan struct{}),
	}
}

func (e *encoder) MimeType() string { return e.mime }

func (e *encoder) State() media.EncoderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *encoder) Events() <-chan media.EncoderEvent { return e.events }

func (e *encoder) Start(timeslice time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return fmt.Errorf("encoder start: %w: state %s", media.ErrInvalidState, e.state)
	}
	if timeslice <= 0 {
		timeslice = 100 * time.Millisecond
	}

	e.header = containerHeader{MimeType: e.mime, FrameRate: 30}
	if vts := e.stream.VideoTracks(); len(vts) > 0 {
		st := vts[0].Settings()
		e.header.Width, e.header.Height = st.Width, st.Height
		if st.FrameRate > 0 {
			e.header.FrameRate = st.FrameRate
		}
		e.unsub = append(e.unsub, vts[0].OnFrame(e.onFrame))
	}
	for _, at := range e.stream.AudioTracks() {
		e.header.Audio = append(e.header.Audio, at.Label())
	}

	e.started = true
	e.state = media.EncoderRecording
	go e.run(timeslice)
	return nil
}

func (e *encoder) onFrame(f *media.VideoFrame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != media.EncoderRecording {
		return
	}
	appendFrameRecord(&e.pending, frameTime(e.frames, e.header.FrameRate), f.Payload)
	e.frames++
}

func (e *encoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != media.EncoderRecording {
		return fmt.Errorf("encoder pause: %w: state %s", media.ErrInvalidState, e.state)
	}
	e.state = media.EncoderPaused
	return nil
}

func (e *encoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != media.EncoderPaused {
		return fmt.Errorf("encoder resume: %w: state %s", media.ErrInvalidState, e.state)
	}
	e.state = media.EncoderRecording
	return nil
}

func (e *encoder) Stop() error {
	e.mu.Lock()
	if e.state == media.EncoderInactive {
		e.mu.Unlock()
		return fmt.Errorf("encoder stop: %w: not started", media.ErrInvalidState)
	}
	e.state = media.EncoderInactive
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()

	for _, u := range unsub {
		u()
	}
	close(e.stop)
	return nil
}

// run flushes a chunk per timeslice. It owns the events channel and closes
// it after the Stop event.
func (e *encoder) run(timeslice time.Duration) {
	defer close(e.events)

	ticker := e.p.clock.NewTicker(timeslice)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			if err := e.flush(); err != nil {
				e.fault(err)
				return
			}
		case <-e.stop:
			if err := e.flush(); err != nil {
				e.events <- media.EncoderEvent{Type: media.EncoderError, Err: err}
			}
			e.events <- media.EncoderEvent{Type: media.EncoderStop}
			return
		}
	}
}

func (e *encoder) flush() error {
	e.mu.Lock()
	var chunk []byte
	if !e.headerSent {
		hdr, err := encodeHeader(e.header)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		chunk = append(chunk, hdr...)
		e.headerSent = true
	}
	chunk = append(chunk, e.pending.Bytes()...)
	e.pending.Reset()
	failAfter := e.p.opts.EncoderFailAfter
	if failAfter > 0 && e.chunks >= failAfter {
		e.mu.Unlock()
		return fmt.Errorf("virtual encoder fault after %d chunks", e.chunks)
	}
	if len(chunk) > 0 {
		e.chunks++
	}
	e.mu.Unlock()

	if len(chunk) > 0 {
		e.events <- media.EncoderEvent{Type: media.EncoderData, Data: chunk}
	}
	return nil
}

// fault reports err and terminates the session the way a failing hardware
// encoder does: an error event followed by a stop.
func (e *encoder) fault(err error) {
	slog.Debug("virtual encoder fault", "error", err)
	e.mu.Lock()
	e.state = media.EncoderInactive
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()
	for _, u := range unsub {
		u()
	}
	e.events <- media.EncoderEvent{Type: media.EncoderError, Err: err}
	e.events <- media.EncoderEvent{Type: media.EncoderStop}
}
