package ui

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/floats"

	"github.com/openspectro/fieldbox/internal/hw/spectrometer"
)

var (
	colBackground = color.RGBA{R: 10, G: 12, B: 16, A: 255}
	colPanel      = color.RGBA{R: 28, G: 32, B: 42, A: 255}
	colText       = color.RGBA{R: 225, G: 228, B: 235, A: 255}
	colDim        = color.RGBA{R: 130, G: 136, B: 150, A: 255}
	colAccent     = color.RGBA{R: 80, G: 220, B: 120, A: 255}
	colWarn       = color.RGBA{R: 235, G: 200, B: 60, A: 255}
	colError      = color.RGBA{R: 230, G: 70, B: 70, A: 255}
)

// drawString renders s with the baseline at (x, y).
func drawString(img *image.RGBA, x, y int, col color.Color, s string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawSpectrum plots the sample's intensity trace into rect, with the
// vertical range autoscaled to the data. When labels is true the
// wavelength range and peak are annotated (used for saved artifacts,
// where there is room for text).
func drawSpectrum(img *image.RGBA, rect image.Rectangle, s *spectrometer.Sample, labels bool) {
	draw.Draw(img, rect, image.NewUniform(colPanel), image.Point{}, draw.Src)

	lo := floats.Min(s.Intensities)
	hi := floats.Max(s.Intensities)
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	inner := rect.Inset(2)
	w := inner.Dx()
	h := inner.Dy()
	if w <= 0 || h <= 0 {
		return
	}

	n := len(s.Intensities)
	peakIdx := floats.MaxIdx(s.Intensities)

	// One trace point per pixel column; columns covering several
	// detector pixels keep their local maximum so narrow lines survive
	// the downsample.
	prevY := -1
	for x := 0; x < w; x++ {
		i0 := x * n / w
		i1 := (x + 1) * n / w
		if i1 <= i0 {
			i1 = i0 + 1
		}
		v := floats.Max(s.Intensities[i0:i1])
		y := inner.Max.Y - 1 - int(float64(h-1)*(v-lo)/span)

		if prevY < 0 {
			prevY = y
		}
		y0, y1 := y, prevY
		if y0 > y1 {
			y0, y1 = y1, y0
		}
		for yy := y0; yy <= y1; yy++ {
			img.SetRGBA(inner.Min.X+x, yy, colAccent)
		}
		prevY = y
	}

	// Peak marker
	px := inner.Min.X + peakIdx*w/n
	for yy := inner.Min.Y; yy < inner.Max.Y; yy += 3 {
		img.SetRGBA(px, yy, colWarn)
	}

	if labels {
		drawString(img, inner.Min.X+4, inner.Min.Y+14, colText,
			fmt.Sprintf("peak %.1fnm  %.0f counts", s.PeakWavelength(), hi))
		drawString(img, inner.Min.X+4, inner.Max.Y-4, colDim,
			fmt.Sprintf("%.0fnm", s.Wavelengths[0]))
		right := fmt.Sprintf("%.0fnm", s.Wavelengths[len(s.Wavelengths)-1])
		drawString(img, inner.Max.X-4-7*len(right), inner.Max.Y-4, colDim, right)
	}
}

// RenderPlotImage renders a standalone plot of the sample at the given
// size, used for the persisted PNG artifact.
func RenderPlotImage(s *spectrometer.Sample, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)

	header := 24
	drawString(img, 8, 16, colText, fmt.Sprintf("spectrum  %s  integration %v  %d points",
		s.CapturedAt.Format("2006-01-02 15:04:05"), s.IntegrationTime, s.Points()))

	plotRect := image.Rect(4, header, w-4, h-4)
	drawSpectrum(img, plotRect, s, true)
	return img
}
