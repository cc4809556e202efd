// Package spectrometer provides the acquisition capability: a timed
// measurement producing a wavelength/intensity sample.
package spectrometer

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/openspectro/fieldbox/internal/device"
)

// Sample is one spectral acquisition. Immutable once produced.
type Sample struct {
	Wavelengths     []float64 // nm, ascending
	Intensities     []float64 // counts
	IntegrationTime time.Duration
	CapturedAt      time.Time
}

// Points returns the number of pixels in the sample.
func (s *Sample) Points() int { return len(s.Wavelengths) }

// PeakWavelength returns the wavelength of the highest count.
func (s *Sample) PeakWavelength() float64 {
	return s.Wavelengths[floats.MaxIdx(s.Intensities)]
}

// Device is the acquisition capability. Acquire blocks for up to the
// adapter's configured timeout and returns either a valid sample or a
// typed *device.Error.
type Device interface {
	Acquire(ctx context.Context) (*Sample, error)
	Close() error
}

// detector saturation ceiling for 16-bit ADCs
const satCount = 65535

// Validate rejects malformed or saturated payloads before they can
// reach the renderer or storage.
func Validate(s *Sample) error {
	if len(s.Wavelengths) == 0 || len(s.Intensities) == 0 {
		return device.NewError("spectrometer", "validate", device.KindInvalidData,
			fmt.Errorf("empty sample"))
	}
	if len(s.Wavelengths) != len(s.Intensities) {
		return device.NewError("spectrometer", "validate", device.KindInvalidData,
			fmt.Errorf("%d wavelengths vs %d intensities", len(s.Wavelengths), len(s.Intensities)))
	}

	lo := floats.Min(s.Intensities)
	hi := floats.Max(s.Intensities)
	if lo == hi {
		return device.NewError("spectrometer", "validate", device.KindInvalidData,
			fmt.Errorf("flat signal at %.0f counts", lo))
	}

	saturated := 0
	for _, v := range s.Intensities {
		if v >= satCount {
			saturated++
		}
	}
	if saturated*2 > len(s.Intensities) {
		return device.NewError("spectrometer", "validate", device.KindInvalidData,
			fmt.Errorf("%d of %d pixels saturated", saturated, len(s.Intensities)))
	}

	return nil
}

// wavelengthAxis evaluates the calibration polynomial for every pixel.
func wavelengthAxis(coeffs []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		v := 0.0
		for p := len(coeffs) - 1; p >= 0; p-- {
			v = v*x + coeffs[p]
		}
		out[i] = v
	}
	return out
}
