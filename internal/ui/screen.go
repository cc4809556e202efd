// Package ui holds the renderable projection of the machine state
// (ScreenModel) and the renderer that turns it into display frames.
package ui

import (
	"github.com/openspectro/fieldbox/internal/device"
	"github.com/openspectro/fieldbox/internal/hw/camera"
	"github.com/openspectro/fieldbox/internal/hw/spectrometer"
)

// ScreenKind selects which screen layout is active.
type ScreenKind int

const (
	ScreenMenu ScreenKind = iota
	ScreenPlot
	ScreenPhoto
	ScreenStatus
)

// OverlayKind classifies the transient overlay box.
type OverlayKind int

const (
	OverlayNone OverlayKind = iota
	OverlayInfo
	OverlayError
)

// Overlay is a transient message box drawn over the current screen.
type Overlay struct {
	Kind OverlayKind
	Text string
}

// Legend describes what each physical key currently does. Empty
// entries are not drawn.
type Legend struct {
	Key1 string
	Key2 string
	Key3 string
	Nav  string // joystick hint
}

// Model is the complete renderable state. It is rebuilt wholesale on
// every state transition and never mutated in place.
type Model struct {
	Kind  ScreenKind
	Title string
	Lines []string // text content for menu/status screens

	Spectrum *spectrometer.Sample // plot data, ScreenPlot only
	Photo    *camera.Frame        // preview data, ScreenPhoto only

	Overlay Overlay
	Legend  Legend

	Spectro device.Status
	Camera  device.Status
}
