package spectrometer

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/openspectro/fieldbox/internal/device"
)

const simPixels = 2048

// Sim is a synthetic spectrometer for development without hardware.
// It produces a handful of Gaussian emission lines over a dark baseline,
// scaled by the integration time, with shot-ish noise on top.
type Sim struct {
	IntegrationTime  time.Duration
	WavelengthCoeffs []float64

	rng *rand.Rand
}

func NewSim(integration time.Duration, coeffs []float64) *Sim {
	return &Sim{
		IntegrationTime:  integration,
		WavelengthCoeffs: coeffs,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// emission lines of a mercury-argon calibration lamp, roughly
var simLines = []struct {
	center float64 // nm
	width  float64
	height float64
}{
	{404.7, 1.2, 0.55},
	{435.8, 1.2, 0.95},
	{546.1, 1.5, 1.0},
	{577.0, 1.3, 0.40},
	{579.1, 1.3, 0.38},
	{696.5, 1.8, 0.30},
}

// Acquire waits the integration time, then synthesizes a sample.
func (s *Sim) Acquire(ctx context.Context) (*Sample, error) {
	select {
	case <-ctx.Done():
		return nil, device.NewError("spectrometer", "acquire", device.KindTimeout, ctx.Err())
	case <-time.After(s.IntegrationTime):
	}

	wl := wavelengthAxis(s.WavelengthCoeffs, simPixels)
	counts := make([]float64, simPixels)
	scale := float64(s.IntegrationTime.Milliseconds())
	if scale <= 0 {
		scale = 1
	}
	for i, nm := range wl {
		v := 120.0 // dark baseline
		for _, line := range simLines {
			d := (nm - line.center) / line.width
			v += 400 * scale * line.height * math.Exp(-d*d/2)
		}
		v += s.rng.NormFloat64() * (5 + math.Sqrt(v)*0.5)
		if v < 0 {
			v = 0
		}
		if v > satCount {
			v = satCount
		}
		counts[i] = v
	}

	sample := &Sample{
		Wavelengths:     wl,
		Intensities:     counts,
		IntegrationTime: s.IntegrationTime,
		CapturedAt:      time.Now(),
	}
	if err := Validate(sample); err != nil {
		return nil, err
	}
	return sample, nil
}

func (s *Sim) Close() error { return nil }
