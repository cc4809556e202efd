// Package camera provides the still-capture capability.
package camera

import (
	"context"
	"image"
	"time"
)

// Frame is one captured still. Immutable once produced.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// Device is the capture capability. Capture blocks for up to the
// adapter's configured timeout and returns either a frame or a typed
// *device.Error.
type Device interface {
	Capture(ctx context.Context) (*Frame, error)
	Close() error
}
