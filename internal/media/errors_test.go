package media

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyDeviceError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{fmt.Errorf("getUserMedia: %w", ErrNotAllowed), KindPermissionDenied},
		{fmt.Errorf("audio: %w", ErrNotFound), KindNoDevice},
		{ErrNotReadable, KindDeviceBusy},
		{ErrOverconstrained, KindUnsupported},
		{errors.New("boom"), KindUnsupported},
	}
	for _, tt := range tests {
		if got := ClassifyDeviceError(tt.err); got != tt.want {
			t.Errorf("ClassifyDeviceError(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestError_WrapsAndClassifies(t *testing.T) {
	err := fmt.Errorf("acquire: %w", NewError(KindDeviceBusy, "getUserMedia", ErrNotReadable))

	if KindOf(err) != KindDeviceBusy {
		t.Errorf("Expected DeviceBusy, got %s", KindOf(err))
	}
	if !errors.Is(err, ErrNotReadable) {
		t.Error("Expected error chain to contain ErrNotReadable")
	}
	var me *Error
	if !errors.As(err, &me) || !me.Retryable() {
		t.Error("Expected a retryable *Error")
	}
	if !strings.Contains(err.Error(), "DeviceBusy") {
		t.Errorf("Expected kind in message, got %q", err.Error())
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("Expected Unknown kind for plain errors")
	}
	if NewError(KindTrimTimeout, "trim", nil).Retryable() {
		t.Error("Expected TrimTimeout to be non-retryable")
	}
}

func TestSimpleStream(t *testing.T) {
	s := NewStream("s1")
	if s.Active() {
		t.Error("Expected empty stream to be inactive")
	}
	if len(s.VideoTracks()) != 0 || len(s.AudioTracks()) != 0 {
		t.Error("Expected no tracks")
	}
	StopTracks(nil)
}

func TestFacingMode(t *testing.T) {
	if FacingFront.String() != "user" || FacingBack.String() != "environment" {
		t.Errorf("Unexpected facing mode strings: %s %s", FacingFront, FacingBack)
	}
	if FacingFront.Opposite() != FacingBack || FacingBack.Opposite() != FacingFront {
		t.Error("Opposite should swap cameras")
	}
	if f, ok := ParseFacingMode("back"); !ok || f != FacingBack {
		t.Errorf("Expected back camera, got %s (ok=%v)", f, ok)
	}
	if _, ok := ParseFacingMode("sideways"); ok {
		t.Error("Expected unknown facing mode to be rejected")
	}
}
