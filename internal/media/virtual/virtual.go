// Package virtual implements media.Platform in pure Go: simulated cameras and
// a microphone, an in-memory audio routing graph, a frame container and an
// encoder. All timing runs on an injectable clock.
package virtual

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
	"github.com/AIGelman23/Connectify-sub001/internal/media/wav"
)

// CameraSpec describes a simulated camera.
type CameraSpec struct {
	Facing    media.FacingMode
	Label     string
	MaxWidth  int
	MaxHeight int
	FrameRate int
	// Zoom is nil when the camera has no zoom control.
	Zoom  *media.Range
	Torch bool
}

// DefaultCameras returns a phone-like pair: a 1080p front camera without
// zoom and a 4K back camera with zoom and torch.
func DefaultCameras() []CameraSpec {
	return []CameraSpec{
		{Facing: media.FacingFront, Label: "Front Camera", MaxWidth: 1920, MaxHeight: 1080, FrameRate: 30},
		{Facing: media.FacingBack, Label: "Back Camera", MaxWidth: 3840, MaxHeight: 2160, FrameRate: 30,
			Zoom: &media.Range{Min: 1, Max: 10, Step: 0.1}, Torch: true},
	}
}

// DefaultMimeTypes are the container types the virtual encoder accepts.
var DefaultMimeTypes = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm",
	"video/mp4",
}

// Options configures a Platform. The zero value is usable: real clock,
// default cameras, a microphone and the default mime types.
type Options struct {
	Clock   clockwork.Clock
	Cameras []CameraSpec

	NoMicrophone   bool
	DenyPermission bool
	// StrictConstraints treats ideal values as exact: a camera that cannot
	// satisfy the requested facing mode or resolution is overconstrained.
	StrictConstraints bool

	SupportedMimeTypes []string
	// EncoderFailAfter makes every encoder fault after emitting that many
	// chunks. Zero disables.
	EncoderFailAfter int
	NoAudioContext   bool
	// StallPlayback makes loaded elements never advance once playing.
	StallPlayback bool
}

// Platform is the virtual media.Platform.
type Platform struct {
	opts  Options
	clock clockwork.Clock

	mu       sync.Mutex
	held     map[string]bool // camera device IDs with a live track
	bound    map[media.MediaElement]*audioContext
	contexts int
	elements int
	surfaces int

	draws atomic.Int64
}

// New creates a virtual platform.
func New(opts Options) *Platform {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Cameras == nil {
		opts.Cameras = DefaultCameras()
	}
	if opts.SupportedMimeTypes == nil {
		opts.SupportedMimeTypes = DefaultMimeTypes
	}
	return &Platform{
		opts:  opts,
		clock: opts.Clock,
		held:  make(map[string]bool),
		bound: make(map[media.MediaElement]*audioContext),
	}
}

func (p *Platform) Name() string { return "virtual" }

func (p *Platform) Devices() media.Devices { return p }

func (p *Platform) Encoders() media.EncoderFactory { return p }

func (p *Platform) Decoder() media.AudioDecoder { return p }

// Clock returns the clock driving the platform.
func (p *Platform) Clock() clockwork.Clock { return p.clock }

// Draws returns the number of frames drawn onto surfaces so far.
func (p *Platform) Draws() int64 { return p.draws.Load() }

// Stats reports open platform resources.
type Stats struct {
	HeldCameras   int
	AudioContexts int
	Elements      int
	Surfaces      int
}

// Stats returns a snapshot of open resources.
func (p *Platform) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		HeldCameras:   len(p.held),
		AudioContexts: p.contexts,
		Elements:      p.elements,
		Surfaces:      p.surfaces,
	}
}

func cameraDeviceID(spec CameraSpec) string {
	return "camera-" + spec.Facing.String()
}

// EnumerateDevices lists the simulated devices.
func (p *Platform) EnumerateDevices(ctx context.Context) ([]media.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []media.DeviceInfo
	for _, c := range p.opts.Cameras {
		out = append(out, media.DeviceInfo{
			DeviceID:   cameraDeviceID(c),
			Kind:       media.DeviceKindVideoInput,
			Label:      c.Label,
			FacingMode: c.Facing.String(),
		})
	}
	if !p.opts.NoMicrophone {
		out = append(out, media.DeviceInfo{DeviceID: "microphone", Kind: media.DeviceKindAudioInput, Label: "Microphone"})
	}
	out = append(out, media.DeviceInfo{DeviceID: "speakers", Kind: media.DeviceKindAudioOutput, Label: "Speakers"})
	return out, nil
}

// GetUserMedia acquires simulated camera and microphone tracks.
func (p *Platform) GetUserMedia(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Video == nil && c.Audio == nil {
		return nil, fmt.Errorf("getUserMedia: %w: no media kind requested", media.ErrNotSupported)
	}
	if p.opts.DenyPermission {
		return nil, fmt.Errorf("getUserMedia: %w", media.ErrNotAllowed)
	}

	var spec CameraSpec
	if c.Video != nil {
		var err error
		if spec, err = p.selectCamera(c.Video); err != nil {
			return nil, fmt.Errorf("getUserMedia: %w", err)
		}
	}
	if c.Audio != nil && p.opts.NoMicrophone {
		return nil, fmt.Errorf("getUserMedia: audio: %w", media.ErrNotFound)
	}

	var tracks []media.Track
	if c.Video != nil {
		id := cameraDeviceID(spec)
		p.mu.Lock()
		if p.held[id] {
			p.mu.Unlock()
			return nil, fmt.Errorf("getUserMedia: %s: %w", spec.Label, media.ErrNotReadable)
		}
		p.held[id] = true
		p.mu.Unlock()
		tracks = append(tracks, newCameraTrack(p, spec, c.Video))
	}
	if c.Audio != nil {
		tracks = append(tracks, newAudioTrack("Microphone", nil))
	}

	s := media.NewStream(uuid.NewString(), tracks...)
	slog.Debug("virtual stream acquired", "stream", s.ID(), "tracks", len(tracks))
	return s, nil
}

func (p *Platform) selectCamera(vc *media.VideoConstraints) (CameraSpec, error) {
	if len(p.opts.Cameras) == 0 {
		return CameraSpec{}, fmt.Errorf("video: %w", media.ErrNotFound)
	}
	idx := slices.IndexFunc(p.opts.Cameras, func(c CameraSpec) bool { return c.Facing == vc.FacingMode })
	if idx < 0 {
		if p.opts.StrictConstraints {
			return CameraSpec{}, fmt.Errorf("facingMode %s: %w", vc.FacingMode, media.ErrOverconstrained)
		}
		idx = 0
	}
	spec := p.opts.Cameras[idx]
	if p.opts.StrictConstraints &&
		(vc.IdealWidth > spec.MaxWidth || vc.IdealHeight > spec.MaxHeight || vc.IdealFrameRate > spec.FrameRate) {
		return CameraSpec{}, fmt.Errorf("%dx%d@%d on %s: %w",
			vc.IdealWidth, vc.IdealHeight, vc.IdealFrameRate, spec.Label, media.ErrOverconstrained)
	}
	return spec, nil
}

func (p *Platform) release(deviceID string) {
	p.mu.Lock()
	delete(p.held, deviceID)
	p.mu.Unlock()
}

// IsTypeSupported reports whether the encoder accepts mime.
func (p *Platform) IsTypeSupported(mime string) bool {
	return slices.Contains(p.opts.SupportedMimeTypes, mime)
}

// NewEncoder creates an encoder for s.
func (p *Platform) NewEncoder(s media.Stream, mime string) (media.Encoder, error) {
	if s == nil {
		return nil, fmt.Errorf("new encoder: %w: nil stream", media.ErrInvalidState)
	}
	if !p.IsTypeSupported(mime) {
		return nil, fmt.Errorf("new encoder: %w: %s", media.ErrNotSupported, mime)
	}
	return newEncoder(p, s, mime), nil
}

// DecodeAudioData decodes a WAV file.
func (p *Platform) DecodeAudioData(ctx context.Context, data []byte) (*media.AudioBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wav.Decode(data)
}

// NewAudioContext creates an audio routing graph.
func (p *Platform) NewAudioContext() (media.AudioContext, error) {
	if p.opts.NoAudioContext {
		return nil, fmt.Errorf("audio context: %w", media.ErrNotSupported)
	}
	p.mu.Lock()
	p.contexts++
	p.mu.Unlock()
	return newAudioContext(p), nil
}

// LoadElement opens a container blob for playback.
func (p *Platform) LoadElement(ctx context.Context, b media.Blob) (media.MediaElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := decodeContainer(b.Data)
	if err != nil {
		return nil, err
	}
	p.trackElement(1)
	return &videoElement{p: p, src: "blob:" + uuid.NewString(), c: c, paused: true}, nil
}

// NewAudioElement opens an audio file. Its duration is taken from the
// decoded PCM when the file is a WAV and is unknown (zero) otherwise.
func (p *Platform) NewAudioElement(ctx context.Context, src string) (media.MediaElement, error) {
	data, err := media.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	el := &audioElement{p: p, src: src, paused: true}
	if buf, err := wav.Decode(data); err == nil {
		el.duration = secondsToDuration(buf.Duration())
	}
	p.trackElement(1)
	return el, nil
}

// NewSurface allocates an offscreen surface.
func (p *Platform) NewSurface(size media.Size) (media.Surface, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("new surface: %w: %dx%d", media.ErrNotSupported, size.Width, size.Height)
	}
	p.mu.Lock()
	p.surfaces++
	p.mu.Unlock()
	return &surface{p: p, size: size}, nil
}

func (p *Platform) trackElement(delta int) {
	p.mu.Lock()
	p.elements += delta
	p.mu.Unlock()
}
