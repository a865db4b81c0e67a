package virtual

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// frameSubscribers fans frames out to OnFrame callbacks.
type frameSubscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]func(*media.VideoFrame)
}

func (f *frameSubscribers) add(cb func(*media.VideoFrame)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]func(*media.VideoFrame))
	}
	id := f.next
	f.next++
	f.subs[id] = cb
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *frameSubscribers) publish(frame *media.VideoFrame) {
	f.mu.Lock()
	cbs := make([]func(*media.VideoFrame), 0, len(f.subs))
	for _, cb := range f.subs {
		cbs = append(cbs, cb)
	}
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(frame)
	}
}

// cameraTrack is a live camera producing synthetic frames at its frame rate.
type cameraTrack struct {
	id       string
	p        *Platform
	spec     CameraSpec
	settings media.VideoSettings

	mu    sync.Mutex
	state media.TrackState
	zoom  float64
	torch bool

	frames frameSubscribers
	cancel context.CancelFunc
	done   chan struct{}
}

func newCameraTrack(p *Platform, spec CameraSpec, vc *media.VideoConstraints) *cameraTrack {
	width, height, fps := spec.MaxWidth, spec.MaxHeight, spec.FrameRate
	if vc.IdealWidth > 0 && vc.IdealWidth < width {
		width = vc.IdealWidth
	}
	if vc.IdealHeight > 0 && vc.IdealHeight < height {
		height = vc.IdealHeight
	}
	if vc.IdealFrameRate > 0 && vc.IdealFrameRate < fps {
		fps = vc.IdealFrameRate
	}
	if fps <= 0 {
		fps = 30
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &cameraTrack{
		id:   uuid.NewString(),
		p:    p,
		spec: spec,
		settings: media.VideoSettings{
			Width:      width,
			Height:     height,
			FrameRate:  fps,
			FacingMode: spec.Facing,
			DeviceID:   cameraDeviceID(spec),
		},
		state:  media.TrackStateLive,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if spec.Zoom != nil {
		t.zoom = spec.Zoom.Min
	}
	go t.run(ctx)
	return t
}

// run pushes one frame per frame interval until the track is stopped.
func (t *cameraTrack) run(ctx context.Context) {
	defer close(t.done)
	interval := time.Second / time.Duration(t.settings.FrameRate)
	ticker := t.p.clock.NewTicker(interval)
	defer ticker.Stop()
	start := t.p.clock.Now()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			seq++
			payload := make([]byte, 8)
			binary.BigEndian.PutUint64(payload, seq)
			t.frames.publish(&media.VideoFrame{
				Seq:       seq,
				Width:     t.settings.Width,
				Height:    t.settings.Height,
				Timestamp: now.Sub(start),
				Payload:   payload,
			})
		}
	}
}

func (t *cameraTrack) ID() string       { return t.id }
func (t *cameraTrack) Kind() media.Kind { return media.KindVideo }
func (t *cameraTrack) Label() string    { return t.spec.Label }

func (t *cameraTrack) State() media.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *cameraTrack) Stop() {
	t.mu.Lock()
	if t.state == media.TrackStateEnded {
		t.mu.Unlock()
		return
	}
	t.state = media.TrackStateEnded
	t.mu.Unlock()

	t.cancel()
	<-t.done
	t.p.release(t.settings.DeviceID)
}

func (t *cameraTrack) Settings() media.VideoSettings { return t.settings }

func (t *cameraTrack) ZoomCapability() (media.Range, bool) {
	if t.spec.Zoom == nil {
		return media.Range{}, false
	}
	return *t.spec.Zoom, true
}

func (t *cameraTrack) TorchCapability() bool { return t.spec.Torch }

// Zoom returns the zoom level currently applied.
func (t *cameraTrack) Zoom() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.zoom
}

// Torch reports whether the torch is on.
func (t *cameraTrack) Torch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.torch
}

func (t *cameraTrack) ApplyConstraints(c media.TrackConstraints) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == media.TrackStateEnded {
		return fmt.Errorf("apply constraints: %w: track ended", media.ErrInvalidState)
	}
	if c.Zoom != nil {
		if t.spec.Zoom == nil {
			return fmt.Errorf("zoom: %w", media.ErrNotSupported)
		}
		if *c.Zoom < t.spec.Zoom.Min || *c.Zoom > t.spec.Zoom.Max {
			return fmt.Errorf("zoom %.2f outside [%.2f, %.2f]: %w", *c.Zoom, t.spec.Zoom.Min, t.spec.Zoom.Max, media.ErrOverconstrained)
		}
	}
	if c.Torch != nil && !t.spec.Torch {
		return fmt.Errorf("torch: %w", media.ErrNotSupported)
	}
	if c.Zoom != nil {
		t.zoom = *c.Zoom
	}
	if c.Torch != nil {
		t.torch = *c.Torch
	}
	return nil
}

func (t *cameraTrack) OnFrame(cb func(*media.VideoFrame)) func() {
	return t.frames.add(cb)
}

// audioTrack is a microphone or graph destination track. A non-nil labelFn
// computes the label on demand.
type audioTrack struct {
	id      string
	label   string
	labelFn func() string

	mu    sync.Mutex
	state media.TrackState
}

func newAudioTrack(label string, labelFn func() string) *audioTrack {
	return &audioTrack{id: uuid.NewString(), label: label, labelFn: labelFn, state: media.TrackStateLive}
}

func (t *audioTrack) ID() string       { return t.id }
func (t *audioTrack) Kind() media.Kind { return media.KindAudio }

func (t *audioTrack) Label() string {
	if t.labelFn != nil {
		return t.labelFn()
	}
	return t.label
}

func (t *audioTrack) State() media.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *audioTrack) Stop() {
	t.mu.Lock()
	t.state = media.TrackStateEnded
	t.mu.Unlock()
}

// surfaceTrack is the video track of a captured surface. It emits a frame per
// draw rather than on a timer.
type surfaceTrack struct {
	id   string
	size media.Size
	fps  int

	mu    sync.Mutex
	state media.TrackState

	frames frameSubscribers
}

func (t *surfaceTrack) ID() string       { return t.id }
func (t *surfaceTrack) Kind() media.Kind { return media.KindVideo }
func (t *surfaceTrack) Label() string    { return "surface" }

func (t *surfaceTrack) State() media.TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *surfaceTrack) Stop() {
	t.mu.Lock()
	t.state = media.TrackStateEnded
	t.mu.Unlock()
}

func (t *surfaceTrack) Settings() media.VideoSettings {
	return media.VideoSettings{Width: t.size.Width, Height: t.size.Height, FrameRate: t.fps}
}

func (t *surfaceTrack) ZoomCapability() (media.Range, bool) { return media.Range{}, false }
func (t *surfaceTrack) TorchCapability() bool               { return false }

func (t *surfaceTrack) ApplyConstraints(c media.TrackConstraints) error {
	if c.Zoom != nil || c.Torch != nil {
		return fmt.Errorf("surface track: %w", media.ErrNotSupported)
	}
	return nil
}

func (t *surfaceTrack) OnFrame(cb func(*media.VideoFrame)) func() {
	return t.frames.add(cb)
}

func (t *surfaceTrack) push(frame *media.VideoFrame) {
	if t.State() != media.TrackStateLive {
		return
	}
	t.frames.publish(frame)
}
