package camera

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/openspectro/fieldbox/internal/device"
)

// Sim produces a synthetic test card (color bars over a luminance
// gradient) for development without a camera module.
type Sim struct {
	W, H int
}

func NewSim(w, h int) *Sim {
	return &Sim{W: w, H: h}
}

var barColors = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
}

func (s *Sim) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, device.NewError("camera", "capture", device.KindTimeout, err)
	}

	img := image.NewRGBA(image.Rect(0, 0, s.W, s.H))
	barH := s.H * 3 / 4
	for y := 0; y < s.H; y++ {
		for x := 0; x < s.W; x++ {
			if y < barH {
				img.SetRGBA(x, y, barColors[x*len(barColors)/s.W])
			} else {
				v := uint8(x * 255 / s.W)
				img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
			}
		}
	}

	return &Frame{Image: img, CapturedAt: time.Now()}, nil
}

func (s *Sim) Close() error { return nil }
