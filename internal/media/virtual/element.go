package virtual

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// videoElement plays a container. Playback is frame-stepped: each draw onto
// a surface presents the current frame and advances by one.
type videoElement struct {
	p   *Platform
	src string
	c   *container

	mu     sync.Mutex
	pos    int
	paused bool
	ended  bool
	closed bool
}

func (e *videoElement) Source() string          { return e.src }
func (e *videoElement) Duration() time.Duration { return e.c.duration() }

func (e *videoElement) VideoSize() media.Size {
	return media.Size{Width: e.c.header.Width, Height: e.c.header.Height}
}

// AudioLabels lists the audio tracks recorded in the container.
func (e *videoElement) AudioLabels() []string { return e.c.header.Audio }

func (e *videoElement) Seek(ctx context.Context, pos time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("seek: %w: element closed", media.ErrInvalidState)
	}
	idx := frameIndex(max(pos, 0), e.c.fps())
	if idx > len(e.c.frames) {
		idx = len(e.c.frames)
	}
	e.pos = idx
	e.ended = idx >= len(e.c.frames)
	return nil
}

func (e *videoElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("play: %w: element closed", media.ErrInvalidState)
	}
	if e.ended {
		e.pos = 0
		e.ended = false
	}
	e.paused = false
	return nil
}

func (e *videoElement) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

func (e *videoElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *videoElement) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *videoElement) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return frameTime(e.pos, e.c.fps())
}

func (e *videoElement) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.paused = true
	e.mu.Unlock()
	e.p.unbind(e)
	e.p.trackElement(-1)
	return nil
}

// step presents the current frame and advances playback. It reports false
// when nothing is playing.
func (e *videoElement) step() (*media.VideoFrame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused || e.ended || e.closed || e.p.opts.StallPlayback {
		return nil, false
	}
	f := &media.VideoFrame{
		Seq:       uint64(e.pos + 1),
		Width:     e.c.header.Width,
		Height:    e.c.header.Height,
		Timestamp: frameTime(e.pos, e.c.fps()),
		Payload:   e.c.frames[e.pos],
	}
	e.pos++
	if e.pos >= len(e.c.frames) {
		e.ended = true
		e.paused = true
	}
	return f, true
}

// audioElement plays an audio file in clock time.
type audioElement struct {
	p        *Platform
	src      string
	duration time.Duration

	mu        sync.Mutex
	base      time.Duration
	startedAt time.Time
	paused    bool
	closed    bool
}

func (e *audioElement) Source() string          { return e.src }
func (e *audioElement) Duration() time.Duration { return e.duration }
func (e *audioElement) VideoSize() media.Size   { return media.Size{} }

func (e *audioElement) Seek(ctx context.Context, pos time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("seek: %w: element closed", media.ErrInvalidState)
	}
	e.base = max(pos, 0)
	e.startedAt = e.p.clock.Now()
	return nil
}

func (e *audioElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("play: %w: element closed", media.ErrInvalidState)
	}
	if !e.paused {
		return nil
	}
	if e.duration > 0 && e.base >= e.duration {
		e.base = 0
	}
	e.startedAt = e.p.clock.Now()
	e.paused = false
	return nil
}

func (e *audioElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return
	}
	e.base = e.currentLocked()
	e.paused = true
}

func (e *audioElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *audioElement) Ended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration > 0 && e.currentLocked() >= e.duration
}

func (e *audioElement) CurrentTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked()
}

func (e *audioElement) currentLocked() time.Duration {
	cur := e.base
	if !e.paused {
		cur += e.p.clock.Since(e.startedAt)
	}
	if e.duration > 0 && cur > e.duration {
		cur = e.duration
	}
	return cur
}

func (e *audioElement) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.paused = true
	e.mu.Unlock()
	e.p.unbind(e)
	e.p.trackElement(-1)
	return nil
}

// surface draws video elements and republishes the frames on its captured
// track.
type surface struct {
	p    *Platform
	size media.Size

	mu     sync.Mutex
	track  *surfaceTrack
	closed bool
}

func (s *surface) Size() media.Size { return s.size }

func (s *surface) Draw(el media.MediaElement) error {
	s.mu.Lock()
	closed, track := s.closed, s.track
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("draw: %w: surface closed", media.ErrInvalidState)
	}
	ve, ok := el.(*videoElement)
	if !ok {
		return fmt.Errorf("draw: %w: element has no video", media.ErrNotSupported)
	}
	frame, ok := ve.step()
	if !ok {
		return nil
	}
	s.p.draws.Add(1)
	if track != nil {
		frame.Width, frame.Height = s.size.Width, s.size.Height
		track.push(frame)
	}
	return nil
}

func (s *surface) CaptureStream(fps int) (media.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("capture stream: %w: surface closed", media.ErrInvalidState)
	}
	if fps <= 0 {
		fps = 30
	}
	if s.track != nil {
		s.track.Stop()
	}
	s.track = &surfaceTrack{id: newID(), size: s.size, fps: fps, state: media.TrackStateLive}
	return media.NewStream(newID(), s.track), nil
}

func (s *surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	track := s.track
	s.mu.Unlock()
	if track != nil {
		track.Stop()
	}
	s.p.mu.Lock()
	s.p.surfaces--
	s.p.mu.Unlock()
	return nil
}
