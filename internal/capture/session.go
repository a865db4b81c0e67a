package capture

import (
	"math"

	"github.com/AIGelman23/Connectify-sub001/internal/media"
)

// State represents the state of the capture session
type State string

const (
	StateIdle       State = "IDLE"
	StateRequesting State = "REQUESTING"
	StateStreaming  State = "STREAMING"
	StateFlipping   State = "FLIPPING"
	StateError      State = "ERROR"
)

// Permission is the last known camera permission.
type Permission string

const (
	PermissionUnknown Permission = "unknown"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Zoom is the negotiated zoom capability of the active camera.
type Zoom struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Step    float64 `json:"step"`
	Current float64 `json:"current"`
}

// Clamp snaps level to the zoom step and clamps it into [Min, Max].
func (z Zoom) Clamp(level float64) float64 {
	if math.IsNaN(level) {
		return z.Min
	}
	if z.Step > 0 {
		level = z.Min + math.Round((level-z.Min)/z.Step)*z.Step
	}
	return math.Min(math.Max(level, z.Min), z.Max)
}

// Session is a snapshot of the capture session.
type Session struct {
	State      State            `json:"state"`
	Stream     media.Stream     `json:"-"`
	Facing     media.FacingMode `json:"-"`
	FacingName string           `json:"facing_mode"`
	Permission Permission       `json:"permission"`
	// Zoom is nil when the camera has no zoom control.
	Zoom *Zoom `json:"zoom,omitempty"`
	// Torch is nil when the camera has no torch.
	Torch *bool `json:"torch,omitempty"`
	// Tier is the acquisition tier that succeeded (1..3), zero when idle.
	Tier int `json:"tier"`
	// AudioTracks is zero when acquisition fell through to video only.
	AudioTracks int    `json:"audio_tracks"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	LastError   string `json:"last_error,omitempty"`
}
