package ui

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"

	"github.com/openspectro/fieldbox/internal/device"
)

const (
	titleBarH  = 16
	legendBarH = 14
	charW      = 7 // basicfont.Face7x13 advance
)

// Renderer composes display frames from a Model. It performs no device
// I/O and holds no mutable state besides its dimensions, so rendering
// is a pure function of the model.
type Renderer struct {
	w, h int
}

func NewRenderer(w, h int) *Renderer {
	return &Renderer{w: w, h: h}
}

// Render produces a full frame for the model.
func (r *Renderer) Render(m Model) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.w, r.h))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)

	r.drawTitleBar(img, m)

	content := image.Rect(0, titleBarH, r.w, r.h-legendBarH)
	switch m.Kind {
	case ScreenPlot:
		if m.Spectrum != nil {
			drawSpectrum(img, content.Inset(1), m.Spectrum, false)
		}
	case ScreenPhoto:
		if m.Photo != nil {
			xdraw.NearestNeighbor.Scale(img, content.Inset(1), m.Photo.Image, m.Photo.Image.Bounds(), xdraw.Src, nil)
		}
	default: // menu and status screens are text blocks
		y := content.Min.Y + 14
		for _, line := range m.Lines {
			drawString(img, 4, y, colText, line)
			y += 14
		}
	}

	r.drawLegend(img, m.Legend)

	if m.Overlay.Kind != OverlayNone {
		r.drawOverlay(img, m.Overlay)
	}

	return img
}

func (r *Renderer) drawTitleBar(img *image.RGBA, m Model) {
	bar := image.Rect(0, 0, r.w, titleBarH)
	draw.Draw(img, bar, image.NewUniform(colPanel), image.Point{}, draw.Src)
	drawString(img, 3, 12, colText, m.Title)

	// Two status dots top-right: spectrometer then camera.
	drawStatusDot(img, r.w-16, 5, m.Spectro)
	drawStatusDot(img, r.w-8, 5, m.Camera)
}

func drawStatusDot(img *image.RGBA, x, y int, st device.Status) {
	col := colAccent
	switch {
	case !st.Connected:
		col = colError
	case st.HasError:
		col = colWarn
	}
	draw.Draw(img, image.Rect(x, y, x+6, y+6), image.NewUniform(col), image.Point{}, draw.Src)
}

func (r *Renderer) drawLegend(img *image.RGBA, l Legend) {
	bar := image.Rect(0, r.h-legendBarH, r.w, r.h)
	draw.Draw(img, bar, image.NewUniform(colPanel), image.Point{}, draw.Src)

	y := r.h - 3
	x := 2
	for _, part := range []string{l.Key1, l.Key2, l.Key3, l.Nav} {
		if part == "" {
			continue
		}
		drawString(img, x, y, colDim, part)
		x += charW * (len(part) + 1)
	}
}

func (r *Renderer) drawOverlay(img *image.RGBA, ov Overlay) {
	border := colAccent
	if ov.Kind == OverlayError {
		border = colError
	}

	maxChars := (r.w - 20) / charW
	lines := wrapText(ov.Text, maxChars)

	boxH := len(lines)*14 + 12
	boxW := r.w - 10
	x0 := (r.w - boxW) / 2
	y0 := (r.h - boxH) / 2
	box := image.Rect(x0, y0, x0+boxW, y0+boxH)

	draw.Draw(img, box, image.NewUniform(color.RGBA{R: 18, G: 20, B: 26, A: 255}), image.Point{}, draw.Src)
	drawRectOutline(img, box, border)

	y := y0 + 16
	for _, line := range lines {
		drawString(img, x0+6, y, colText, line)
		y += 14
	}
}

func drawRectOutline(img *image.RGBA, rect image.Rectangle, col color.RGBA) {
	for x := rect.Min.X; x < rect.Max.X; x++ {
		img.SetRGBA(x, rect.Min.Y, col)
		img.SetRGBA(x, rect.Max.Y-1, col)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		img.SetRGBA(rect.Min.X, y, col)
		img.SetRGBA(rect.Max.X-1, y, col)
	}
}

// wrapText splits s into lines of at most maxChars, breaking on spaces
// where possible.
func wrapText(s string, maxChars int) []string {
	if maxChars < 1 {
		maxChars = 1
	}
	var lines []string
	for len(s) > maxChars {
		cut := maxChars
		for i := maxChars; i > 0; i-- {
			if s[i] == ' ' {
				cut = i
				break
			}
		}
		lines = append(lines, s[:cut])
		s = s[cut:]
		for len(s) > 0 && s[0] == ' ' {
			s = s[1:]
		}
	}
	if len(s) > 0 {
		lines = append(lines, s)
	}
	return lines
}
