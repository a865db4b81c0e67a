package media

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Kind is the track kind, shared with pion so tracks can be handed to a
// peer connection unchanged.
type Kind = webrtc.RTPCodecType

const (
	KindAudio = webrtc.RTPCodecTypeAudio
	KindVideo = webrtc.RTPCodecTypeVideo
)

// TrackState represents the state of a track.
type TrackState int

const (
	TrackStateLive  TrackState = iota // Track is producing media
	TrackStateEnded                   // Track was stopped; its device is released
)

func (s TrackState) String() string {
	switch s {
	case TrackStateLive:
		return "live"
	case TrackStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// FacingMode selects the front or back camera.
type FacingMode int

const (
	FacingFront FacingMode = iota
	FacingBack
)

// String returns the constraint value used by capture APIs.
func (f FacingMode) String() string {
	if f == FacingBack {
		return "environment"
	}
	return "user"
}

// Opposite returns the other camera.
func (f FacingMode) Opposite() FacingMode {
	if f == FacingBack {
		return FacingFront
	}
	return FacingBack
}

// ParseFacingMode accepts "user"/"front" and "environment"/"back".
func ParseFacingMode(s string) (FacingMode, bool) {
	switch s {
	case "user", "front", "":
		return FacingFront, true
	case "environment", "back":
		return FacingBack, true
	default:
		return FacingFront, false
	}
}

// Range describes a numeric track capability.
type Range struct {
	Min  float64
	Max  float64
	Step float64
}

// TrackConstraints carries constraints applied to a live track.
// Nil fields are left unchanged.
type TrackConstraints struct {
	Zoom  *float64
	Torch *bool
}

// VideoSettings describes the actual settings of a video track.
type VideoSettings struct {
	Width      int
	Height     int
	FrameRate  int
	FacingMode FacingMode
	DeviceID   string
}

// VideoFrame is a raw frame delivered by a video track.
type VideoFrame struct {
	Seq       uint64
	Width     int
	Height    int
	Timestamp time.Duration
	Payload   []byte
}

// Track is a single audio or video track (like MediaStreamTrack).
type Track interface {
	ID() string
	Kind() Kind
	Label() string
	State() TrackState
	// Stop ends the track and releases the underlying device. Idempotent.
	Stop()
}

// VideoTrack is a Track producing frames.
type VideoTrack interface {
	Track

	Settings() VideoSettings

	// ZoomCapability reports the zoom range when the device supports zoom.
	ZoomCapability() (Range, bool)

	// TorchCapability reports whether the device has a controllable torch.
	TorchCapability() bool

	ApplyConstraints(c TrackConstraints) error

	// OnFrame subscribes to frames; the returned func unsubscribes.
	OnFrame(cb func(*VideoFrame)) (unsubscribe func())
}

// AudioTrack is a Track producing audio.
type AudioTrack interface {
	Track
}

// Stream is a collection of tracks (like MediaStream).
type Stream interface {
	ID() string
	Tracks() []Track
	VideoTracks() []VideoTrack
	AudioTracks() []AudioTrack
	// Active reports whether any track is live.
	Active() bool
}

// SimpleStream is a basic Stream implementation.
type SimpleStream struct {
	id     string
	tracks []Track
	mu     sync.RWMutex
}

// NewStream creates a stream holding the given tracks.
func NewStream(id string, tracks ...Track) *SimpleStream {
	s := &SimpleStream{id: id}
	s.tracks = append(s.tracks, tracks...)
	return s
}

func (s *SimpleStream) ID() string { return s.id }

func (s *SimpleStream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *SimpleStream) VideoTracks() []VideoTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []VideoTrack
	for _, t := range s.tracks {
		if vt, ok := t.(VideoTrack); ok {
			out = append(out, vt)
		}
	}
	return out
}

func (s *SimpleStream) AudioTracks() []AudioTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AudioTrack
	for _, t := range s.tracks {
		if t.Kind() == KindAudio {
			out = append(out, t)
		}
	}
	return out
}

func (s *SimpleStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.State() == TrackStateLive {
			return true
		}
	}
	return false
}

// AddTrack appends a track.
func (s *SimpleStream) AddTrack(t Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// RemoveTrack removes a track by ID.
func (s *SimpleStream) RemoveTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.tracks {
		if cur.ID() == t.ID() {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

// StopTracks stops every track of s. A nil stream is ignored.
func StopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
