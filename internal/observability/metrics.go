// Package observability exposes Prometheus collectors for the control
// loop and its peripherals.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the controller updates.
type Metrics struct {
	Acquisitions        prometheus.Counter
	AcquisitionFailures *prometheus.CounterVec
	Captures            prometheus.Counter
	CaptureFailures     *prometheus.CounterVec
	Saves               *prometheus.CounterVec
	SaveFailures        prometheus.Counter
	Transitions         *prometheus.CounterVec
	StalePresses        prometheus.Counter
	DeviceUp            *prometheus.GaugeVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Acquisitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldbox_acquisitions_total",
			Help: "Successful spectral acquisitions.",
		}),
		AcquisitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldbox_acquisition_failures_total",
			Help: "Failed spectral acquisitions by error kind.",
		}, []string{"kind"}),
		Captures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldbox_captures_total",
			Help: "Successful photo captures.",
		}),
		CaptureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldbox_capture_failures_total",
			Help: "Failed photo captures by error kind.",
		}, []string{"kind"}),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldbox_saves_total",
			Help: "Artifacts persisted to the capture directory by kind.",
		}, []string{"kind"}),
		SaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldbox_save_failures_total",
			Help: "Failed artifact saves.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldbox_state_transitions_total",
			Help: "State machine transitions by target state.",
		}, []string{"state"}),
		StalePresses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldbox_stale_presses_total",
			Help: "Action presses discarded because they predate the current screen.",
		}),
		DeviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fieldbox_device_up",
			Help: "1 when the peripheral answered its last call, 0 otherwise.",
		}, []string{"device"}),
	}

	reg.MustRegister(
		m.Acquisitions, m.AcquisitionFailures,
		m.Captures, m.CaptureFailures,
		m.Saves, m.SaveFailures,
		m.Transitions, m.StalePresses,
		m.DeviceUp,
	)
	return m
}
