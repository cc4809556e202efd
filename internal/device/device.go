package device

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies peripheral failures. Every adapter maps its
// driver-level errors onto one of these kinds so the state machine can
// show a legible overlay without knowing the driver.
type ErrorKind int

const (
	KindNotConnected ErrorKind = iota
	KindTimeout
	KindFault
	KindInvalidData
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConnected:
		return "not connected"
	case KindTimeout:
		return "timeout"
	case KindFault:
		return "hardware fault"
	case KindInvalidData:
		return "invalid data"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a typed peripheral error. Device names it ("spectrometer",
// "camera"), Op is the failed operation.
type Error struct {
	Device string
	Op     string
	Kind   ErrorKind
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Device, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Device, e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed peripheral error.
func NewError(dev, op string, kind ErrorKind, err error) *Error {
	return &Error{Device: dev, Op: op, Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err, if it wraps a device Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Status is the per-peripheral health record, refreshed after every
// acquire/capture attempt.
type Status struct {
	Connected bool      `json:"connected"`
	HasError  bool      `json:"has_error"`
	LastError ErrorKind `json:"last_error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// StatusFrom derives a fresh Status from the outcome of a device call.
func StatusFrom(err error) Status {
	s := Status{CheckedAt: time.Now()}
	if err == nil {
		s.Connected = true
		return s
	}
	s.HasError = true
	if kind, ok := KindOf(err); ok {
		s.LastError = kind
		s.Connected = kind != KindNotConnected
		return s
	}
	s.LastError = KindFault
	s.Connected = true
	return s
}
