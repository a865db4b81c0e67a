package media

import (
	"errors"
	"fmt"
)

// Platform-level failures, named after the DOMException names the browser
// capture APIs raise. Platform implementations return (or wrap) these.
var (
	ErrOverconstrained = errors.New("overconstrained")
	ErrNotFound        = errors.New("requested device not found")
	ErrNotAllowed      = errors.New("permission denied")
	ErrNotReadable     = errors.New("device in use")
	ErrNotSupported    = errors.New("operation not supported")
	ErrInvalidState    = errors.New("invalid state")
)

// ErrorKind classifies failures surfaced at component boundaries.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindNoDevice
	KindDeviceBusy
	KindUnsupported
	KindDecodeFailure
	KindEncoderFault
	KindTrimTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindNoDevice:
		return "NoDevice"
	case KindDeviceBusy:
		return "DeviceBusy"
	case KindUnsupported:
		return "Unsupported"
	case KindDecodeFailure:
		return "DecodeFailure"
	case KindEncoderFault:
		return "EncoderFault"
	case KindTrimTimeout:
		return "TrimTimeout"
	default:
		return "Unknown"
	}
}

// Error is the typed error returned by the capture pipeline components.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the user should be offered a retry action.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindPermissionDenied, KindNoDevice, KindDeviceBusy, KindEncoderFault:
		return true
	default:
		return false
	}
}

// NewError wraps err with a kind and the failing operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// ClassifyDeviceError maps a platform acquisition failure to a device kind.
func ClassifyDeviceError(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNotAllowed):
		return KindPermissionDenied
	case errors.Is(err, ErrNotFound):
		return KindNoDevice
	case errors.Is(err, ErrNotReadable):
		return KindDeviceBusy
	default:
		return KindUnsupported
	}
}
