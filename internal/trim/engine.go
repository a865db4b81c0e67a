// Package trim re-encodes a clip to a selected interval and enforces the
// selection invariants.
package trim

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
	"github.com/AIGelman23/Connectify-sub001/internal/recorder"
)

// Options configures the engine.
type Options struct {
	FrameRate    int
	SafetyMargin time.Duration
	MinWidth     time.Duration
	Timeslice    time.Duration
	MimeTypes    []string
	Clock        clockwork.Clock
}

// DefaultOptions redraws at 30 fps with a 500 ms safety margin.
func DefaultOptions() Options {
	return Options{
		FrameRate:    30,
		SafetyMargin: 500 * time.Millisecond,
		MinWidth:     100 * time.Millisecond,
		Timeslice:    100 * time.Millisecond,
		MimeTypes:    recorder.DefaultMimeTypes,
	}
}

// Result describes a finished trim.
type Result struct {
	Blob        media.Blob
	Start       time.Duration
	End         time.Duration
	Frames      int
	AudioRouted bool
}

// Engine trims clips by redrawing decoded frames onto a captured surface.
type Engine struct {
	platform media.Platform
	opts     Options
	clock    clockwork.Clock
}

// NewEngine creates a trim engine.
func NewEngine(p media.Platform, opts Options) *Engine {
	def := DefaultOptions()
	if opts.FrameRate <= 0 {
		opts.FrameRate = def.FrameRate
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = def.SafetyMargin
	}
	if opts.MinWidth <= 0 {
		opts.MinWidth = def.MinWidth
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = def.Timeslice
	}
	if opts.MimeTypes == nil {
		opts.MimeTypes = def.MimeTypes
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Engine{platform: p, opts: opts, clock: opts.Clock}
}

// collector drains encoder events into a blob.
type collector struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	done   chan struct{}
}

func collect(enc media.Encoder) *collector {
	c := &collector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for ev := range enc.Events() {
			c.mu.Lock()
			switch ev.Type {
			case media.EncoderData:
				c.chunks = append(c.chunks, ev.Data)
			case media.EncoderError:
				c.err = ev.Err
			}
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *collector) result() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.chunks, nil), c.err
}

// Trim re-encodes blob to [start, end). The interval is clamped to the
// source. If the frame loop has not reached end within (end − start) plus
// the safety margin the encoder is force-stopped and a TrimTimeout error is
// returned.
func (e *Engine) Trim(ctx context.Context, blob media.Blob, start, end time.Duration) (*Result, error) {
	id := uuid.NewString()

	el, err := e.platform.LoadElement(ctx, blob)
	if err != nil {
		return nil, media.NewError(media.KindDecodeFailure, "trim load", err)
	}
	defer el.Close()

	start, end = Clamp(start, end, el.Duration(), e.opts.MinWidth)
	if end <= start {
		return nil, media.NewError(media.KindDecodeFailure, "trim load", errors.New("source has no duration"))
	}
	size := el.VideoSize()
	if size.Width <= 0 || size.Height <= 0 {
		return nil, media.NewError(media.KindDecodeFailure, "trim load", errors.New("source has no video"))
	}
	slog.Debug("Trim starting", "trim", id, "start", start, "end", end, "source_duration", el.Duration(), "width", size.Width, "height", size.Height)

	surf, err := e.platform.NewSurface(size)
	if err != nil {
		return nil, media.NewError(media.KindUnsupported, "trim surface", err)
	}
	defer surf.Close()
	video, err := surf.CaptureStream(e.opts.FrameRate)
	if err != nil {
		return nil, media.NewError(media.KindUnsupported, "trim surface", err)
	}

	out := media.NewStream(uuid.NewString(), video.Tracks()...)
	audioRouted := false
	if ac, err := e.routeAudio(el, out); err != nil {
		slog.Warn("Trim audio unavailable, continuing video only", "trim", id, "error", err)
	} else {
		defer ac.Close()
		audioRouted = true
	}

	if err := el.Seek(ctx, start); err != nil {
		return nil, media.NewError(media.KindDecodeFailure, "trim seek", err)
	}

	mime := blob.MimeType
	if !e.platform.Encoders().IsTypeSupported(mime) {
		mime = recorder.NegotiateMimeType(e.platform.Encoders(), e.opts.MimeTypes, "video/webm")
	}
	enc, err := e.platform.Encoders().NewEncoder(out, mime)
	if err != nil {
		return nil, media.NewError(media.KindUnsupported, "trim encoder", err)
	}
	if err := enc.Start(e.opts.Timeslice); err != nil {
		return nil, media.NewError(media.KindEncoderFault, "trim encoder", err)
	}
	sink := collect(enc)
	if err := el.Play(); err != nil {
		enc.Stop()
		<-sink.done
		return nil, media.NewError(media.KindDecodeFailure, "trim play", err)
	}

	frames, loopErr := e.frameLoop(ctx, el, surf, end, end-start, sink.done)
	el.Pause()
	if err := enc.Stop(); err != nil && !errors.Is(err, media.ErrInvalidState) {
		slog.Debug("Trim encoder stop", "trim", id, "error", err)
	}

	select {
	case <-sink.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if loopErr != nil {
		slog.Warn("Trim failed", "trim", id, "error", loopErr)
		return nil, loopErr
	}
	data, encErr := sink.result()
	if encErr != nil {
		return nil, media.NewError(media.KindEncoderFault, "trim encode", encErr)
	}

	slog.Info("Trim complete", "trim", id, "frames", frames, "bytes", len(data), "audio", audioRouted)
	return &Result{
		Blob:        media.Blob{Data: data, MimeType: mime},
		Start:       start,
		End:         end,
		Frames:      frames,
		AudioRouted: audioRouted,
	}, nil
}

// routeAudio connects the element's audio into out. On success the caller
// owns the returned context.
func (e *Engine) routeAudio(el media.MediaElement, out *media.SimpleStream) (media.AudioContext, error) {
	ac, err := e.platform.NewAudioContext()
	if err != nil {
		return nil, err
	}
	src, err := ac.ElementSource(el)
	if err != nil {
		ac.Close()
		return nil, err
	}
	dest, err := ac.StreamDestination()
	if err != nil {
		ac.Close()
		return nil, err
	}
	if err := src.Connect(dest); err != nil {
		ac.Close()
		return nil, err
	}
	for _, t := range dest.Stream().AudioTracks() {
		out.AddTrack(t)
	}
	return ac, nil
}

// frameLoop draws a frame per tick until playback reaches end, the source
// ends or pauses, the encoder stops on its own, or the safety timer fires.
func (e *Engine) frameLoop(ctx context.Context, el media.MediaElement, surf media.Surface, end, span time.Duration, encDone <-chan struct{}) (int, error) {
	ticker := e.clock.NewTicker(time.Second / time.Duration(e.opts.FrameRate))
	defer ticker.Stop()
	safety := e.clock.NewTimer(span + e.opts.SafetyMargin)
	defer safety.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		case <-encDone:
			return frames, nil
		case <-safety.Chan():
			return frames, media.NewError(media.KindTrimTimeout, "trim",
				fmt.Errorf("playback reached %v of %v after %v", el.CurrentTime(), end, span+e.opts.SafetyMargin))
		case <-ticker.Chan():
			if el.CurrentTime() >= end || el.Ended() || el.Paused() {
				return frames, nil
			}
			if err := surf.Draw(el); err != nil {
				return frames, media.NewError(media.KindDecodeFailure, "trim draw", err)
			}
			frames++
		}
	}
}
