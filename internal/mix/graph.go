// Package mix routes background music (and optionally the microphone) into
// the audio track of the stream handed to the recorder.
package mix

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// Mode selects how the microphone is treated while music is selected.
type Mode string

const (
	// ModeReplace drops the microphone: the recorded audio is the music only.
	ModeReplace Mode = "replace"
	// ModeBlend records the microphone and the music together.
	ModeBlend Mode = "blend"
)

// ParseMode parses a mode name; the empty string means ModeReplace.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeReplace:
		return ModeReplace, nil
	case ModeBlend:
		return ModeBlend, nil
	default:
		return "", fmt.Errorf("invalid mix mode %q (must be 'replace' or 'blend')", s)
	}
}

// Options controls graph construction.
type Options struct {
	Mode        Mode
	MusicVolume float64
	MicVolume   float64
	// Monitor also plays the music on the live output device.
	Monitor bool
}

// DefaultOptions returns replace mode at unity gain with monitoring.
func DefaultOptions() Options {
	return Options{Mode: ModeReplace, MusicVolume: 1, MicVolume: 1, Monitor: true}
}

// Graph is one built mix. It is never reused: a stream or sound change
// closes it and builds a new one.
type Graph struct {
	id     string
	ac     media.AudioContext
	stream media.Stream
	music  media.MediaElement
	mode   Mode

	mu     sync.Mutex
	closed bool
}

// ID identifies the graph in logs.
func (g *Graph) ID() string { return g.id }

// Stream is the stream to record: the input's video tracks plus the mixed
// audio track, or the raw input when no music is selected.
func (g *Graph) Stream() media.Stream { return g.stream }

// Mixed reports whether an audio graph is in place.
func (g *Graph) Mixed() bool { return g.ac != nil }

// Mode returns the mode the graph was built with.
func (g *Graph) Mode() Mode { return g.mode }

// Music returns the background element, or nil.
func (g *Graph) Music() media.MediaElement { return g.music }

// Context returns the graph's audio context, or nil for a passthrough graph.
func (g *Graph) Context() media.AudioContext { return g.ac }

// Close releases the audio context. The input stream and the music element
// belong to the caller and are left untouched. Idempotent.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	if g.ac == nil {
		return nil
	}
	slog.Debug("Closing mix graph", "graph", g.id)
	return g.ac.Close()
}

// Closed reports whether Close has been called.
func (g *Graph) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Build creates a graph mixing music into in. A nil music element yields a
// passthrough graph and no audio context is created.
func Build(newContext func() (media.AudioContext, error), in media.Stream, music media.MediaElement, opts Options) (*Graph, error) {
	if in == nil {
		return nil, fmt.Errorf("build mix: %w: no input stream", media.ErrInvalidState)
	}
	g := &Graph{id: uuid.NewString(), stream: in, music: music, mode: opts.Mode}
	if music == nil {
		return g, nil
	}

	ac, err := newContext()
	if err != nil {
		return nil, media.NewError(media.KindUnsupported, "build mix", err)
	}
	out, err := route(ac, in, music, opts)
	if err != nil {
		ac.Close()
		return nil, fmt.Errorf("build mix: %w", err)
	}
	g.ac = ac
	g.stream = out
	return g, nil
}

func route(ac media.AudioContext, in media.Stream, music media.MediaElement, opts Options) (media.Stream, error) {
	src, err := ac.ElementSource(music)
	if err != nil {
		return nil, err
	}
	musicGain, err := ac.Gain(opts.MusicVolume)
	if err != nil {
		return nil, err
	}
	dest, err := ac.StreamDestination()
	if err != nil {
		return nil, err
	}
	if err := errors.Join(src.Connect(musicGain), musicGain.Connect(dest)); err != nil {
		return nil, err
	}
	if opts.Monitor {
		if err := src.Connect(ac.Output()); err != nil {
			return nil, err
		}
	}

	if opts.Mode == ModeBlend && len(in.AudioTracks()) > 0 {
		mic, err := ac.StreamSource(in)
		if err != nil {
			return nil, err
		}
		micGain, err := ac.Gain(opts.MicVolume)
		if err != nil {
			return nil, err
		}
		if err := errors.Join(mic.Connect(micGain), micGain.Connect(dest)); err != nil {
			return nil, err
		}
	}

	var tracks []media.Track
	for _, vt := range in.VideoTracks() {
		tracks = append(tracks, vt)
	}
	for _, at := range dest.Stream().AudioTracks() {
		tracks = append(tracks, at)
	}
	return media.NewStream(uuid.NewString(), tracks...), nil
}

// Mixer holds the single live graph. Building a new graph closes the
// previous one first.
type Mixer struct {
	newContext func() (media.AudioContext, error)

	mu      sync.Mutex
	opts    Options
	current *Graph
}

// New creates a mixer using newContext for audio contexts.
func New(newContext func() (media.AudioContext, error), opts Options) *Mixer {
	return &Mixer{newContext: newContext, opts: opts}
}

// Options returns the current mix options.
func (m *Mixer) Options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// SetOptions replaces the options used by subsequent builds.
func (m *Mixer) SetOptions(opts Options) {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
}

// Rebuild closes the current graph and builds a new one. A nil stream only
// closes the current graph.
func (m *Mixer) Rebuild(in media.Stream, music media.MediaElement) (*Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
	if in == nil {
		return nil, nil
	}

	g, err := Build(m.newContext, in, music, m.opts)
	if err != nil {
		slog.Error("Failed to build mix graph", "error", err)
		return nil, err
	}
	m.current = g
	slog.Info("Mix graph built", "graph", g.ID(), "mixed", g.Mixed(), "mode", string(m.opts.Mode))
	return g, nil
}

// Current returns the live graph or nil.
func (m *Mixer) Current() *Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Close closes the live graph.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}
