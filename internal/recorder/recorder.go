// Package recorder wraps an encoder session with pause/resume, elapsed-time
// tracking and a max-duration auto-stop.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// State represents the current state of the recorder
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StatePaused    State = "PAUSED"
	StateStopped   State = "STOPPED"
	StateError     State = "ERROR"
)

// DefaultMimeTypes is the container/codec preference order.
var DefaultMimeTypes = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
	"video/mp4",
}

// Options configures a Recorder.
type Options struct {
	MaxDuration      time.Duration
	Timeslice        time.Duration
	TickInterval     time.Duration
	MimeTypes        []string
	FallbackMimeType string
	Clock            clockwork.Clock
}

// DefaultOptions returns a 60 s limit with 100 ms chunks.
func DefaultOptions() Options {
	return Options{
		MaxDuration:      60 * time.Second,
		Timeslice:        100 * time.Millisecond,
		TickInterval:     100 * time.Millisecond,
		MimeTypes:        DefaultMimeTypes,
		FallbackMimeType: "video/webm",
	}
}

// Session is a snapshot of the current recording session.
type Session struct {
	ID          string        `json:"id,omitempty"`
	State       State         `json:"state"`
	MimeType    string        `json:"mime_type,omitempty"`
	Chunks      int           `json:"chunks"`
	Bytes       int           `json:"bytes"`
	Elapsed     time.Duration `json:"elapsed"`
	MaxDuration time.Duration `json:"max_duration"`
	Error       string        `json:"error,omitempty"`
}

// session is one encoder run. A cleared or restarted recorder gets a fresh
// session, so late encoder events never touch the new one.
type session struct {
	id    string
	enc   media.Encoder
	mime  string
	state State

	chunks [][]byte
	size   int

	accumulated   time.Duration
	startedAt     time.Time
	stopRequested bool
	autoStopped   bool
	discarded     bool

	tickStop chan struct{}
	done     chan struct{}
	blob     media.Blob
	err      error
}

// StopFunc is called once a session has fully stopped.
type StopFunc func(s Session, blob media.Blob, err error, auto bool)

// Recorder records a stream into a blob.
type Recorder struct {
	factory media.EncoderFactory
	opts    Options
	clock   clockwork.Clock

	mu     sync.Mutex
	cur    *session
	onStop []StopFunc
}

// New creates a recorder using factory for encoders.
func New(factory media.EncoderFactory, opts Options) *Recorder {
	def := DefaultOptions()
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = def.MaxDuration
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = def.Timeslice
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.MimeTypes == nil {
		opts.MimeTypes = def.MimeTypes
	}
	if opts.FallbackMimeType == "" {
		opts.FallbackMimeType = def.FallbackMimeType
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Recorder{factory: factory, opts: opts, clock: opts.Clock}
}

// NegotiateMimeType returns the first preferred type the factory supports,
// or fallback.
func NegotiateMimeType(f media.EncoderFactory, prefs []string, fallback string) string {
	for _, m := range prefs {
		if f.IsTypeSupported(m) {
			return m
		}
	}
	return fallback
}

// OnStop registers fn to run after every session stops, including
// automatic stops at the duration limit.
func (r *Recorder) OnStop(fn StopFunc) {
	r.mu.Lock()
	r.onStop = append(r.onStop, fn)
	r.mu.Unlock()
}

// Start begins recording s. Any stopped session is discarded.
func (r *Recorder) Start(s media.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil && (r.cur.state == StateRecording || r.cur.state == StatePaused) {
		return fmt.Errorf("start: %w: already %s", media.ErrInvalidState, r.cur.state)
	}
	if s == nil {
		return fmt.Errorf("start: %w: no stream", media.ErrInvalidState)
	}

	mime := NegotiateMimeType(r.factory, r.opts.MimeTypes, r.opts.FallbackMimeType)
	enc, err := r.factory.NewEncoder(s, mime)
	if err != nil {
		return media.NewError(media.KindUnsupported, "start recording", err)
	}
	if err := enc.Start(r.opts.Timeslice); err != nil {
		return media.NewError(media.KindEncoderFault, "start recording", err)
	}

	sess := &session{
		id:        uuid.NewString(),
		enc:       enc,
		mime:      mime,
		state:     StateRecording,
		startedAt: r.clock.Now(),
		done:      make(chan struct{}),
	}
	r.cur = sess
	r.startTickerLocked(sess)
	go r.drain(sess)

	slog.Info("Recording started", "session", sess.id, "mime_type", mime, "max_duration", r.opts.MaxDuration)
	return nil
}

// Pause pauses an active recording. It acts on the encoder's reported state.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.cur
	if s == nil || s.stopRequested || s.enc.State() != media.EncoderRecording {
		return fmt.Errorf("pause: %w: encoder is not recording", media.ErrInvalidState)
	}
	if err := s.enc.Pause(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	s.accumulated += r.clock.Since(s.startedAt)
	s.state = StatePaused
	r.stopTickerLocked(s)
	slog.Debug("Recording paused", "session", s.id, "elapsed", s.accumulated)
	return nil
}

// Resume continues a paused recording from the accumulated elapsed time.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.cur
	if s == nil || s.stopRequested || s.enc.State() != media.EncoderPaused {
		return fmt.Errorf("resume: %w: encoder is not paused", media.ErrInvalidState)
	}
	if err := s.enc.Resume(); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	s.startedAt = r.clock.Now()
	s.state = StateRecording
	r.startTickerLocked(s)
	slog.Debug("Recording resumed", "session", s.id, "elapsed", s.accumulated)
	return nil
}

// Stop ends the recording and returns the concatenated chunks. Calling it on
// a stopped or idle recorder is a no-op returning the last result. An
// encoder fault yields the partial blob together with an EncoderFault error.
func (r *Recorder) Stop(ctx context.Context) (media.Blob, error) {
	r.mu.Lock()
	s := r.cur
	if s == nil {
		r.mu.Unlock()
		return media.Blob{}, nil
	}
	r.requestStopLocked(s)
	done := s.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return media.Blob{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return s.blob, s.err
}

// Done is closed when the current session has fully stopped. With no
// session it is already closed.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.cur.done
}

// Clear discards the current session, stopping it first if needed.
func (r *Recorder) Clear() {
	r.mu.Lock()
	s := r.cur
	r.cur = nil
	if s != nil {
		s.discarded = true
		r.requestStopLocked(s)
	}
	r.mu.Unlock()
	if s != nil {
		slog.Debug("Recording cleared", "session", s.id)
	}
}

// Session returns a snapshot of the current session.
func (r *Recorder) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(r.cur)
}

// State returns the current state.
func (r *Recorder) State() State {
	return r.Session().State
}

// Elapsed returns the recorded time so far.
func (r *Recorder) Elapsed() time.Duration {
	return r.Session().Elapsed
}

// Remaining returns the time left before the automatic stop.
func (r *Recorder) Remaining() time.Duration {
	return max(r.opts.MaxDuration-r.Elapsed(), 0)
}

// MaxDuration returns the configured duration limit.
func (r *Recorder) MaxDuration() time.Duration { return r.opts.MaxDuration }

func (r *Recorder) snapshotLocked(s *session) Session {
	if s == nil {
		return Session{State: StateIdle, MaxDuration: r.opts.MaxDuration}
	}
	out := Session{
		ID:          s.id,
		State:       s.state,
		MimeType:    s.mime,
		Chunks:      len(s.chunks),
		Bytes:       s.size,
		Elapsed:     r.elapsedLocked(s),
		MaxDuration: r.opts.MaxDuration,
	}
	if s.err != nil {
		out.Error = s.err.Error()
	}
	return out
}

func (r *Recorder) elapsedLocked(s *session) time.Duration {
	if s.state == StateRecording && !s.stopRequested {
		return s.accumulated + r.clock.Since(s.startedAt)
	}
	return s.accumulated
}

// requestStopLocked freezes elapsed time and asks the encoder to stop. The
// session completes when the encoder's stop event is drained.
func (r *Recorder) requestStopLocked(s *session) {
	if s.stopRequested {
		return
	}
	if s.state == StateRecording {
		s.accumulated += r.clock.Since(s.startedAt)
	}
	s.stopRequested = true
	r.stopTickerLocked(s)
	if err := s.enc.Stop(); err != nil && !errors.Is(err, media.ErrInvalidState) {
		slog.Warn("Encoder stop failed", "session", s.id, "error", err)
	}
}

func (r *Recorder) startTickerLocked(s *session) {
	ticker := r.clock.NewTicker(r.opts.TickInterval)
	stop := make(chan struct{})
	s.tickStop = stop
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				r.tick(s)
			}
		}
	}()
}

func (r *Recorder) stopTickerLocked(s *session) {
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

// tick enforces the duration limit.
func (r *Recorder) tick(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.state != StateRecording || s.stopRequested {
		return
	}
	if elapsed := r.elapsedLocked(s); elapsed >= r.opts.MaxDuration {
		slog.Info("Max duration reached, stopping", "session", s.id, "elapsed", elapsed)
		s.autoStopped = true
		r.requestStopLocked(s)
	}
}

// drain consumes encoder events until the encoder closes its channel.
func (r *Recorder) drain(s *session) {
	for ev := range s.enc.Events() {
		switch ev.Type {
		case media.EncoderData:
			r.mu.Lock()
			s.chunks = append(s.chunks, ev.Data)
			s.size += len(ev.Data)
			r.mu.Unlock()
		case media.EncoderError:
			r.mu.Lock()
			if s.state == StateRecording {
				s.accumulated += r.clock.Since(s.startedAt)
			}
			s.err = media.NewError(media.KindEncoderFault, "record", ev.Err)
			s.state = StateError
			s.stopRequested = true
			r.stopTickerLocked(s)
			r.mu.Unlock()
			slog.Error("Encoder fault", "session", s.id, "error", ev.Err)
		case media.EncoderStop:
			r.finish(s)
			return
		}
	}
	r.finish(s)
}

func (r *Recorder) finish(s *session) {
	r.mu.Lock()
	select {
	case <-s.done:
		r.mu.Unlock()
		return
	default:
	}
	s.stopRequested = true
	r.stopTickerLocked(s)
	if s.state != StateError {
		s.state = StateStopped
	}
	s.blob = media.Blob{Data: bytes.Join(s.chunks, nil), MimeType: s.mime}
	close(s.done)
	snap := r.snapshotLocked(s)
	blob, err, auto := s.blob, s.err, s.autoStopped
	var listeners []StopFunc
	if !s.discarded {
		listeners = append(listeners, r.onStop...)
	}
	r.mu.Unlock()

	slog.Info("Recording stopped", "session", s.id, "bytes", blob.Size(), "elapsed", snap.Elapsed, "auto", auto)
	for _, fn := range listeners {
		fn(snap, blob, err, auto)
	}
}
