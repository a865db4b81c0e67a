// Package capture acquires and manages the camera and microphone stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// Options holds the tier-1 constraints.
type Options struct {
	IdealWidth       int
	IdealHeight      int
	FrameRate        int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultOptions requests 4K at 30 fps with voice processing enabled.
func DefaultOptions() Options {
	return Options{
		IdealWidth:       3840,
		IdealHeight:      2160,
		FrameRate:        30,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Manager owns the single active camera stream.
type Manager struct {
	devices media.Devices
	opts    Options

	mu        sync.Mutex
	session   Session
	listeners []func(media.Stream)
	// gen advances on every acquire, flip and release. An open that
	// finishes under a newer generation is stale.
	gen uint64
}

// NewManager creates a stream manager acquiring from devices.
func NewManager(devices media.Devices, opts Options) *Manager {
	return &Manager{
		devices: devices,
		opts:    opts,
		session: Session{State: StateIdle, Permission: PermissionUnknown, FacingName: media.FacingFront.String()},
	}
}

// OnStreamChange registers fn to be called with the new stream after every
// acquisition, flip and release (nil on release).
func (m *Manager) OnStreamChange(fn func(media.Stream)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// SetOptions replaces the tier-1 constraints used by the next acquisition.
func (m *Manager) SetOptions(opts Options) {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
}

// Session returns a snapshot of the capture session.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Session {
	s := m.session
	if s.Zoom != nil {
		z := *s.Zoom
		s.Zoom = &z
	}
	if s.Torch != nil {
		t := *s.Torch
		s.Torch = &t
	}
	return s
}

// Stream returns the active stream or nil.
func (m *Manager) Stream() media.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Stream
}

// Acquire opens the camera facing the given way. Any previous stream is
// released first.
func (m *Manager) Acquire(ctx context.Context, facing media.FacingMode) (Session, error) {
	m.mu.Lock()
	if m.session.State == StateRequesting || m.session.State == StateFlipping {
		m.mu.Unlock()
		return Session{}, fmt.Errorf("acquire: %w: %s in progress", media.ErrInvalidState, m.session.State)
	}
	old := m.session.Stream
	m.session.Stream = nil
	m.session.State = StateRequesting
	m.gen++
	gen := m.gen
	m.session.Facing = facing
	m.session.FacingName = facing.String()
	m.mu.Unlock()

	if old != nil {
		media.StopTracks(old)
		slog.Debug("Released previous stream before acquire", "stream", old.ID())
	}

	stream, tier, err := m.acquire(ctx, facing)

	m.mu.Lock()
	if m.gen != gen {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		if stream != nil {
			media.StopTracks(stream)
		}
		slog.Warn("Camera released during acquire, discarding new stream", "facing", facing.String())
		return snap, fmt.Errorf("acquire: %w: camera released during acquire", media.ErrInvalidState)
	}
	if err != nil {
		m.failLocked(err)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(nil)
		return snap, err
	}
	m.installLocked(stream, facing, tier)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	slog.Info("Camera acquired", "facing", facing.String(), "tier", tier, "audio_tracks", snap.AudioTracks)
	m.notify(stream)
	return snap, nil
}

// Flip switches to the opposite camera. The new stream is acquired before
// the old one is stopped; on failure the old stream stays active.
func (m *Manager) Flip(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.session.State != StateStreaming || m.session.Stream == nil {
		state := m.session.State
		m.mu.Unlock()
		return Session{}, fmt.Errorf("flip: %w: camera is %s", media.ErrInvalidState, state)
	}
	facing := m.session.Facing.Opposite()
	m.session.State = StateFlipping
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	stream, tier, err := m.acquire(ctx, facing)

	m.mu.Lock()
	if m.gen != gen {
		// Released while the new camera was opening.
		snap := m.snapshotLocked()
		m.mu.Unlock()
		if stream != nil {
			media.StopTracks(stream)
		}
		slog.Warn("Camera released during flip, discarding new stream", "facing", facing.String())
		return snap, fmt.Errorf("flip: %w: camera released during flip", media.ErrInvalidState)
	}
	if err != nil {
		m.session.State = StateStreaming
		m.session.LastError = err.Error()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		slog.Warn("Camera flip failed, keeping current stream", "error", err)
		return snap, fmt.Errorf("flip: %w", err)
	}
	old := m.session.Stream
	m.installLocked(stream, facing, tier)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	media.StopTracks(old)
	slog.Info("Camera flipped", "facing", facing.String(), "tier", tier)
	m.notify(stream)
	return snap, nil
}

// Release stops every track of the active stream.
func (m *Manager) Release() {
	m.mu.Lock()
	old := m.session.Stream
	m.gen++
	m.session = Session{
		State:      StateIdle,
		Facing:     m.session.Facing,
		FacingName: m.session.FacingName,
		Permission: m.session.Permission,
	}
	m.mu.Unlock()

	if old == nil {
		return
	}
	media.StopTracks(old)
	slog.Info("Camera released", "stream", old.ID())
	m.notify(nil)
}

// SetZoom applies level, snapped and clamped to the camera's range, and
// returns the applied value.
func (m *Manager) SetZoom(level float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Zoom == nil {
		return 0, fmt.Errorf("set zoom: %w", media.ErrNotSupported)
	}
	vt := m.videoTrackLocked()
	if vt == nil {
		return 0, fmt.Errorf("set zoom: %w: no active camera", media.ErrInvalidState)
	}
	z := m.session.Zoom.Clamp(level)
	if err := vt.ApplyConstraints(media.TrackConstraints{Zoom: &z}); err != nil {
		return m.session.Zoom.Current, fmt.Errorf("set zoom: %w", err)
	}
	m.session.Zoom.Current = z
	slog.Debug("Zoom applied", "requested", level, "applied", z)
	return z, nil
}

// SetTorch switches the torch of the active camera.
func (m *Manager) SetTorch(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Torch == nil {
		return fmt.Errorf("set torch: %w", media.ErrNotSupported)
	}
	vt := m.videoTrackLocked()
	if vt == nil {
		return fmt.Errorf("set torch: %w: no active camera", media.ErrInvalidState)
	}
	if err := vt.ApplyConstraints(media.TrackConstraints{Torch: &on}); err != nil {
		return fmt.Errorf("set torch: %w", err)
	}
	*m.session.Torch = on
	return nil
}

func (m *Manager) videoTrackLocked() media.VideoTrack {
	if m.session.Stream == nil {
		return nil
	}
	vts := m.session.Stream.VideoTracks()
	if len(vts) == 0 {
		return nil
	}
	return vts[0]
}

// installLocked makes stream the active stream and negotiates its
// capabilities. Zoom starts at the widest field of view.
func (m *Manager) installLocked(stream media.Stream, facing media.FacingMode, tier int) {
	m.session.Stream = stream
	m.session.State = StateStreaming
	m.session.Facing = facing
	m.session.FacingName = facing.String()
	m.session.Permission = PermissionGranted
	m.session.Tier = tier
	m.session.AudioTracks = len(stream.AudioTracks())
	m.session.LastError = ""
	m.session.Zoom = nil
	m.session.Torch = nil
	m.session.Width, m.session.Height = 0, 0

	vts := stream.VideoTracks()
	if len(vts) == 0 {
		return
	}
	vt := vts[0]
	st := vt.Settings()
	m.session.Width, m.session.Height = st.Width, st.Height

	if r, ok := vt.ZoomCapability(); ok {
		z := &Zoom{Min: r.Min, Max: r.Max, Step: r.Step, Current: r.Min}
		if err := vt.ApplyConstraints(media.TrackConstraints{Zoom: &z.Current}); err != nil {
			slog.Warn("Failed to apply initial zoom", "error", err)
		}
		m.session.Zoom = z
	}
	if vt.TorchCapability() {
		off := false
		m.session.Torch = &off
	}
}

func (m *Manager) failLocked(err error) {
	m.session.State = StateError
	m.session.Stream = nil
	m.session.Tier = 0
	m.session.Zoom = nil
	m.session.Torch = nil
	m.session.LastError = err.Error()
	if media.KindOf(err) == media.KindPermissionDenied {
		m.session.Permission = PermissionDenied
	}
}

func (m *Manager) notify(s media.Stream) {
	m.mu.Lock()
	listeners := append([]func(media.Stream){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// acquire runs the fallback tiers and returns the first stream obtained.
func (m *Manager) acquire(ctx context.Context, facing media.FacingMode) (media.Stream, int, error) {
	m.mu.Lock()
	opts := m.opts
	m.mu.Unlock()

	audio := &media.AudioConstraints{
		EchoCancellation: opts.EchoCancellation,
		NoiseSuppression: opts.NoiseSuppression,
		AutoGainControl:  opts.AutoGainControl,
	}
	tiers := []media.Constraints{
		{
			Video: &media.VideoConstraints{
				FacingMode:     facing,
				IdealWidth:     opts.IdealWidth,
				IdealHeight:    opts.IdealHeight,
				IdealFrameRate: opts.FrameRate,
			},
			Audio: audio,
		},
		{Video: &media.VideoConstraints{FacingMode: facing}, Audio: &media.AudioConstraints{}},
		{Video: &media.VideoConstraints{FacingMode: facing}},
	}

	var lastErr error
	for i, c := range tiers {
		tier := i + 1
		stream, err := m.devices.GetUserMedia(ctx, c)
		if err == nil {
			return stream, tier, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		lastErr = err
		slog.Debug("Acquisition tier failed", "tier", tier, "facing", facing.String(), "error", err)

		// Tier 1 falls through only on constraint and missing-device failures.
		if tier == 1 && !errors.Is(err, media.ErrOverconstrained) && !errors.Is(err, media.ErrNotFound) {
			break
		}
	}
	return nil, 0, media.NewError(media.ClassifyDeviceError(lastErr), "acquire", lastErr)
}
