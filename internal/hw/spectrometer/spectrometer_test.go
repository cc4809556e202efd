package spectrometer

import (
	"context"
	"testing"
	"time"

	"github.com/openspectro/fieldbox/internal/device"
)

func TestValidate_Good(t *testing.T) {
	s := &Sample{
		Wavelengths: []float64{400, 401, 402},
		Intensities: []float64{100, 900, 150},
	}
	if err := Validate(s); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		s    *Sample
	}{
		{"empty", &Sample{}},
		{"length mismatch", &Sample{
			Wavelengths: []float64{400, 401},
			Intensities: []float64{100},
		}},
		{"flat signal", &Sample{
			Wavelengths: []float64{400, 401, 402},
			Intensities: []float64{500, 500, 500},
		}},
		{"saturated", &Sample{
			Wavelengths: []float64{400, 401, 402},
			Intensities: []float64{65535, 65535, 10},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.s)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if kind, ok := device.KindOf(err); !ok || kind != device.KindInvalidData {
				t.Errorf("error kind = %v, want InvalidData", err)
			}
		})
	}
}

func TestWavelengthAxis_Polynomial(t *testing.T) {
	// 340 + 0.5*i - 0.001*i^2
	wl := wavelengthAxis([]float64{340, 0.5, -0.001}, 3)
	want := []float64{340, 340.499, 340.996}
	for i := range want {
		if diff := wl[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("wl[%d] = %v, want %v", i, wl[i], want[i])
		}
	}
}

func TestSim_Acquire(t *testing.T) {
	sim := NewSim(time.Millisecond, []float64{340, 0.38})
	s, err := sim.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s.Points() == 0 {
		t.Fatal("empty sample")
	}
	if len(s.Wavelengths) != len(s.Intensities) {
		t.Fatalf("length mismatch: %d vs %d", len(s.Wavelengths), len(s.Intensities))
	}
	if s.Wavelengths[0] != 340 {
		t.Errorf("first wavelength = %v, want 340", s.Wavelengths[0])
	}
	if s.CapturedAt.IsZero() {
		t.Error("capture timestamp not set")
	}

	// The brightest sim line sits at 546.1nm; the peak should land nearby.
	peak := s.PeakWavelength()
	if peak < 540 || peak > 552 {
		t.Errorf("peak at %.1fnm, want near 546nm", peak)
	}
}

func TestSim_AcquireCancelled(t *testing.T) {
	sim := NewSim(10*time.Second, []float64{340, 0.38})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Acquire(ctx)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if kind, ok := device.KindOf(err); !ok || kind != device.KindTimeout {
		t.Errorf("error kind = %v, want Timeout", err)
	}
}
