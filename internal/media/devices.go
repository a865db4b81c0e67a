package media

import "context"

// DeviceKind represents the kind of media device
type DeviceKind string

const (
	DeviceKindAudioInput  DeviceKind = "audioinput"
	DeviceKindVideoInput  DeviceKind = "videoinput"
	DeviceKindAudioOutput DeviceKind = "audiooutput"
)

// DeviceInfo describes a media device (like MediaDeviceInfo)
type DeviceInfo struct {
	DeviceID   string     `json:"device_id"`
	Kind       DeviceKind `json:"kind"`
	Label      string     `json:"label"`
	FacingMode string     `json:"facing_mode,omitempty"`
}

// VideoConstraints for GetUserMedia. Zero ideal values leave the choice to
// the device.
type VideoConstraints struct {
	FacingMode     FacingMode
	IdealWidth     int
	IdealHeight    int
	IdealFrameRate int
}

// AudioConstraints for GetUserMedia.
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Constraints for GetUserMedia. A nil member means that kind is not requested.
type Constraints struct {
	Video *VideoConstraints
	Audio *AudioConstraints
}

// Devices provides access to capture devices (like navigator.mediaDevices).
type Devices interface {
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)

	// GetUserMedia acquires a stream satisfying c. Failures wrap one of
	// ErrOverconstrained, ErrNotFound, ErrNotAllowed, ErrNotReadable.
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}
