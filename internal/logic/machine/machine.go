// Package machine implements the device control loop: a three-state
// machine driving the display, the peripherals and storage from
// debounced button events.
package machine

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/device"
	"github.com/openspectro/fieldbox/internal/hw/buttons"
	"github.com/openspectro/fieldbox/internal/hw/camera"
	"github.com/openspectro/fieldbox/internal/hw/display"
	"github.com/openspectro/fieldbox/internal/hw/spectrometer"
	"github.com/openspectro/fieldbox/internal/observability"
	"github.com/openspectro/fieldbox/internal/storage"
	"github.com/openspectro/fieldbox/internal/sysinfo"
	"github.com/openspectro/fieldbox/internal/ui"
)

// State is the closed set of machine states.
type State int

const (
	StateIdle State = iota
	StateSpectra
	StateCamera
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSpectra:
		return "SPECTRA"
	case StateCamera:
		return "CAMERA"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// IdleView is the sub-view cycled through while idle. The first two
// are selectable entries; the rest are informational.
type IdleView int

const (
	ViewSpectra IdleView = iota
	ViewCamera
	ViewNetwork
	ViewClock

	idleViewCount = 4
)

func (v IdleView) String() string {
	switch v {
	case ViewSpectra:
		return "spectra"
	case ViewCamera:
		return "camera"
	case ViewNetwork:
		return "network"
	case ViewClock:
		return "clock"
	default:
		return fmt.Sprintf("view(%d)", int(v))
	}
}

// Input is the event source. *buttons.Controller satisfies it; tests
// script their own.
type Input interface {
	Next() (buttons.Event, bool)
	LastSeq() uint64
}

// Snapshot is the read-only view of the machine published for the
// status server.
type Snapshot struct {
	State     string        `json:"state"`
	IdleView  string        `json:"idle_view"`
	Spectro   device.Status `json:"spectrometer"`
	Camera    device.Status `json:"camera"`
	Overlay   string        `json:"overlay,omitempty"`
	LastSaved string        `json:"last_saved,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`

	Frame *image.RGBA `json:"-"` // last rendered display frame
}

// Deps wires the machine to its collaborators.
type Deps struct {
	Input   Input
	Spectro spectrometer.Device
	Camera  camera.Device
	Display display.Display
	Store   *storage.Manager
	Sys     *sysinfo.Provider
	Log     *zap.SugaredLogger
	Metrics *observability.Metrics
	Publish func(Snapshot) // optional
}

// Config tunes the loop.
type Config struct {
	Tick        time.Duration // loop idle period
	OverlayHold time.Duration // transient confirmation duration
}

// Machine owns the current state and every in-memory sample/frame.
// All fields are confined to the Run goroutine; collaborators with
// their own goroutines (input sampling, status server) touch the
// machine only through the queue and published snapshots.
type Machine struct {
	deps     Deps
	cfg      Config
	renderer *ui.Renderer
	ctx      context.Context

	state    State
	idleView IdleView
	sample   *spectrometer.Sample
	frame    *camera.Frame

	spectroStatus device.Status
	cameraStatus  device.Status

	overlay      ui.Overlay
	overlayUntil time.Time // zero = sticks until the next press

	// staleBefore is the newest input sequence number observed when the
	// current screen appeared; queued action presses at or below it
	// were aimed at a screen the user can no longer see.
	staleBefore uint64

	lastSaved  string
	lastRender time.Time
	dirty      bool
}

// New builds the machine in IDLE.
func New(deps Deps, cfg Config) *Machine {
	if cfg.Tick <= 0 {
		cfg.Tick = 20 * time.Millisecond
	}
	if cfg.OverlayHold <= 0 {
		cfg.OverlayHold = 2 * time.Second
	}
	w, h := deps.Display.Size()
	return &Machine{
		deps:     deps,
		cfg:      cfg,
		renderer: ui.NewRenderer(w, h),
		ctx:      context.Background(),
		state:    StateIdle,
		dirty:    true,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// transitionKey addresses one row of the transition table.
type transitionKey struct {
	state  State
	button buttons.Button
}

// transition is one table row. Action rows are subject to the stale
// press check: a queued save/shutter aimed at a vanished screen must
// not fire against the current one.
type transition struct {
	action bool
	fn     func(*Machine)
}

var transitions = map[transitionKey]transition{
	{StateIdle, buttons.Up}:    {fn: (*Machine).idlePrev},
	{StateIdle, buttons.Left}:  {fn: (*Machine).idlePrev},
	{StateIdle, buttons.Down}:  {fn: (*Machine).idleNext},
	{StateIdle, buttons.Right}: {fn: (*Machine).idleNext},
	{StateIdle, buttons.Press}: {action: true, fn: (*Machine).idleSelect},

	{StateSpectra, buttons.Press}: {action: true, fn: (*Machine).acquire},
	{StateSpectra, buttons.Key1}:  {action: true, fn: (*Machine).acquire},
	{StateSpectra, buttons.Key2}:  {action: true, fn: (*Machine).saveSpectrum},
	{StateSpectra, buttons.Key3}:  {fn: (*Machine).backToIdle},
	{StateSpectra, buttons.Left}:  {fn: (*Machine).backToIdle},

	{StateCamera, buttons.Press}: {action: true, fn: (*Machine).capture},
	{StateCamera, buttons.Key1}:  {action: true, fn: (*Machine).capture},
	{StateCamera, buttons.Key2}:  {action: true, fn: (*Machine).savePhoto},
	{StateCamera, buttons.Key3}:  {fn: (*Machine).backToIdle},
	{StateCamera, buttons.Left}:  {fn: (*Machine).backToIdle},
}

// HandleEvent dispatches one button event through the transition
// table. Pairs not in the table are no-ops.
func (m *Machine) HandleEvent(ev buttons.Event) {
	if ev.Edge != buttons.EdgePress {
		return
	}

	tr, ok := transitions[transitionKey{m.state, ev.Button}]
	if !ok {
		m.deps.Log.Debugw("unmapped button press",
			"state", m.state.String(), "button", ev.Button.String())
		return
	}

	if tr.action && m.staleBefore > 0 && ev.Seq > 0 && ev.Seq <= m.staleBefore {
		m.deps.Log.Infow("discarding stale press",
			"state", m.state.String(), "button", ev.Button.String(), "seq", ev.Seq)
		m.deps.Metrics.StalePresses.Inc()
		return
	}

	m.clearOverlay()
	tr.fn(m)
	m.dirty = true
}

// Run drives the control loop until ctx is cancelled. Single goroutine:
// poll input, maybe invoke a device, maybe persist, render.
func (m *Machine) Run(ctx context.Context) error {
	m.ctx = ctx
	m.deps.Log.Infow("control loop started")
	m.render()

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.deps.Log.Infow("control loop stopped")
			return nil
		case <-ticker.C:
		}

		// Drain queued events strictly in arrival order.
		for {
			ev, ok := m.deps.Input.Next()
			if !ok {
				break
			}
			m.HandleEvent(ev)
		}

		if m.expireOverlay() {
			m.dirty = true
		}
		// Informational idle views show a live clock; refresh at 1Hz.
		if m.state == StateIdle && (m.idleView == ViewClock || m.idleView == ViewNetwork) &&
			time.Since(m.lastRender) >= time.Second {
			m.dirty = true
		}

		if m.dirty {
			m.render()
		}
	}
}

// --- IDLE ---

func (m *Machine) idlePrev() {
	m.idleView = (m.idleView + idleViewCount - 1) % idleViewCount
}

func (m *Machine) idleNext() {
	m.idleView = (m.idleView + 1) % idleViewCount
}

func (m *Machine) idleSelect() {
	switch m.idleView {
	case ViewSpectra:
		m.transitionTo(StateSpectra)
		m.acquire()
	case ViewCamera:
		m.transitionTo(StateCamera)
		m.capture()
	default:
		// informational sub-view, nothing to select
	}
}

// --- SPECTRA ---

// acquire runs one blocking acquisition and converts the outcome into
// either a fresh sample or an error overlay. Never called except from
// an explicit user action.
func (m *Machine) acquire() {
	m.deps.Log.Infow("acquiring spectrum")
	s, err := m.deps.Spectro.Acquire(m.ctx)
	m.spectroStatus = device.StatusFrom(err)
	m.deps.Metrics.DeviceUp.WithLabelValues("spectrometer").Set(upGauge(err))
	m.markStale()

	if err != nil {
		m.sample = nil
		m.deps.Metrics.AcquisitionFailures.WithLabelValues(kindLabel(err)).Inc()
		m.deps.Log.Errorw("acquisition failed", "error", err)
		m.showError("acquire failed: " + kindLabel(err))
		return
	}
	m.deps.Metrics.Acquisitions.Inc()
	m.sample = s
	m.deps.Log.Infow("spectrum acquired",
		"points", s.Points(), "peak_nm", s.PeakWavelength())
}

func (m *Machine) saveSpectrum() {
	if m.sample == nil {
		return
	}
	path, err := m.deps.Store.SaveSpectrum(m.sample)
	m.markStale()
	if err != nil {
		m.deps.Metrics.SaveFailures.Inc()
		m.deps.Log.Errorw("spectrum save failed", "error", err)
		m.showError("save failed: " + storageLabel(err))
		return
	}
	m.deps.Metrics.Saves.WithLabelValues("spectrum").Inc()
	m.lastSaved = path
	m.showInfo("saved " + filepath.Base(path))
}

// --- CAMERA ---

func (m *Machine) capture() {
	m.deps.Log.Infow("capturing photo")
	f, err := m.deps.Camera.Capture(m.ctx)
	m.cameraStatus = device.StatusFrom(err)
	m.deps.Metrics.DeviceUp.WithLabelValues("camera").Set(upGauge(err))
	m.markStale()

	if err != nil {
		m.frame = nil
		m.deps.Metrics.CaptureFailures.WithLabelValues(kindLabel(err)).Inc()
		m.deps.Log.Errorw("capture failed", "error", err)
		m.showError("capture failed: " + kindLabel(err))
		return
	}
	m.deps.Metrics.Captures.Inc()
	m.frame = f
	m.deps.Log.Infow("photo captured", "width", f.Width(), "height", f.Height())
}

func (m *Machine) savePhoto() {
	if m.frame == nil {
		return
	}
	path, err := m.deps.Store.SavePhoto(m.frame)
	m.markStale()
	if err != nil {
		m.deps.Metrics.SaveFailures.Inc()
		m.deps.Log.Errorw("photo save failed", "error", err)
		m.showError("save failed: " + storageLabel(err))
		return
	}
	m.deps.Metrics.Saves.WithLabelValues("photo").Inc()
	m.lastSaved = path
	m.showInfo("saved " + filepath.Base(path))
}

// --- shared ---

// backToIdle discards any in-memory sample or frame; their ownership
// ends here.
func (m *Machine) backToIdle() {
	m.sample = nil
	m.frame = nil
	m.transitionTo(StateIdle)
}

func (m *Machine) transitionTo(s State) {
	m.deps.Log.Infow("state transition",
		"from", m.state.String(), "to", s.String())
	m.state = s
	m.deps.Metrics.Transitions.WithLabelValues(s.String()).Inc()
}

// markStale snapshots the input sequence after a blocking call; queued
// action presses at or below it are discarded instead of replayed
// against the new screen.
func (m *Machine) markStale() {
	m.staleBefore = m.deps.Input.LastSeq()
}

func (m *Machine) showInfo(text string) {
	m.overlay = ui.Overlay{Kind: ui.OverlayInfo, Text: text}
	m.overlayUntil = time.Now().Add(m.cfg.OverlayHold)
}

func (m *Machine) showError(text string) {
	m.overlay = ui.Overlay{Kind: ui.OverlayError, Text: text}
	m.overlayUntil = time.Time{} // until the next press
}

func (m *Machine) clearOverlay() {
	m.overlay = ui.Overlay{}
	m.overlayUntil = time.Time{}
}

// expireOverlay clears a timed overlay once its hold elapses.
func (m *Machine) expireOverlay() bool {
	if m.overlay.Kind != ui.OverlayNone && !m.overlayUntil.IsZero() && time.Now().After(m.overlayUntil) {
		m.clearOverlay()
		return true
	}
	return false
}

// render recomputes the ScreenModel wholesale, pushes the frame and
// publishes a snapshot.
func (m *Machine) render() {
	model := m.buildModel()
	img := m.renderer.Render(model)
	if err := m.deps.Display.Frame(img); err != nil {
		m.deps.Log.Errorw("display write failed", "error", err)
	}
	m.lastRender = time.Now()
	m.dirty = false

	if m.deps.Publish != nil {
		m.deps.Publish(Snapshot{
			State:     m.state.String(),
			IdleView:  m.idleView.String(),
			Spectro:   m.spectroStatus,
			Camera:    m.cameraStatus,
			Overlay:   m.overlay.Text,
			LastSaved: m.lastSaved,
			UpdatedAt: time.Now(),
			Frame:     img,
		})
	}
}

// buildModel projects the machine state into a renderable ScreenModel.
func (m *Machine) buildModel() ui.Model {
	model := ui.Model{
		Spectro: m.spectroStatus,
		Camera:  m.cameraStatus,
		Overlay: m.overlay,
	}

	switch m.state {
	case StateSpectra:
		model.Title = "SPECTRA"
		model.Legend = ui.Legend{Key1: "1:New", Key2: "2:Save", Key3: "3:Back"}
		if m.sample != nil {
			model.Kind = ui.ScreenPlot
			model.Spectrum = m.sample
		} else {
			model.Kind = ui.ScreenStatus
			model.Lines = []string{"no spectrum", "", "KEY1 retries"}
			model.Legend = ui.Legend{Key1: "1:Retry", Key3: "3:Back"}
		}

	case StateCamera:
		model.Title = "CAMERA"
		model.Legend = ui.Legend{Key1: "1:Retake", Key2: "2:Save", Key3: "3:Back"}
		if m.frame != nil {
			model.Kind = ui.ScreenPhoto
			model.Photo = m.frame
		} else {
			model.Kind = ui.ScreenStatus
			model.Lines = []string{"no photo", "", "KEY1 retries"}
			model.Legend = ui.Legend{Key1: "1:Retry", Key3: "3:Back"}
		}

	default: // StateIdle
		model.Legend = ui.Legend{Nav: "^v:view o:select"}
		switch m.idleView {
		case ViewCamera:
			model.Kind = ui.ScreenMenu
			model.Title = "CAMERA"
			model.Lines = []string{"Still capture", "", "press o to open"}
		case ViewNetwork:
			info := m.deps.Sys.Info()
			model.Kind = ui.ScreenStatus
			model.Title = "NETWORK"
			if info.IP == "" {
				model.Lines = []string{info.Hostname, "", "no network"}
			} else {
				model.Lines = []string{info.Hostname, info.Interface, info.IP}
			}
		case ViewClock:
			now := m.deps.Sys.Info().Now
			model.Kind = ui.ScreenStatus
			model.Title = "CLOCK"
			model.Lines = []string{now.Format("2006-01-02"), now.Format("15:04:05")}
		default: // ViewSpectra
			model.Kind = ui.ScreenMenu
			model.Title = "SPECTRA"
			model.Lines = []string{"Spectral acquisition", "", "press o to open"}
		}
	}

	return model
}

func upGauge(err error) float64 {
	if err == nil {
		return 1
	}
	return 0
}

// kindLabel renders a device error kind for overlays and metric labels.
func kindLabel(err error) string {
	if kind, ok := device.KindOf(err); ok {
		return kind.String()
	}
	return "error"
}

func storageLabel(err error) string {
	if kind, ok := storage.KindOf(err); ok {
		return kind.String()
	}
	return "error"
}
