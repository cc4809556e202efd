package display

import (
	"image"
	"sync"
)

// Display is the high-level interface for the physical screen. The
// renderer produces a full frame; the display pushes it to the panel.
type Display interface {
	// Size returns the panel dimensions in pixels.
	Size() (width, height int)
	// Frame pushes a complete frame. The image must match Size.
	Frame(img *image.RGBA) error
	Close() error
}

// Mock is an in-memory Display that records every pushed frame,
// for development on PC and for tests.
type Mock struct {
	W, H int

	mu     sync.Mutex
	frames int
	last   *image.RGBA
}

func NewMock(w, h int) *Mock {
	return &Mock{W: w, H: h}
}

func (m *Mock) Size() (int, int) { return m.W, m.H }

func (m *Mock) Frame(img *image.RGBA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
	m.last = img
	return nil
}

func (m *Mock) Close() error { return nil }

// FrameCount returns how many frames were pushed.
func (m *Mock) FrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// LastFrame returns the most recently pushed frame, or nil.
func (m *Mock) LastFrame() *image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
