package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io/fs"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/device"
)

// LibcameraConfig configures the CLI-backed capture driver.
type LibcameraConfig struct {
	Binary  string // e.g. "libcamera-still"
	Width   int
	Height  int
	Timeout time.Duration
}

// Libcamera captures stills by invoking the libcamera CLI and decoding
// the PNG it writes to stdout. The CSI camera stack has no stable C API
// worth binding for a single-frame use case; the CLI is the supported
// surface.
type Libcamera struct {
	cfg LibcameraConfig
	log *zap.SugaredLogger
}

func NewLibcamera(cfg LibcameraConfig, log *zap.SugaredLogger) *Libcamera {
	return &Libcamera{cfg: cfg, log: log}
}

func (c *Libcamera) Capture(ctx context.Context) (*Frame, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.Binary,
		"--nopreview",
		"--immediate",
		"--width", strconv.Itoa(c.cfg.Width),
		"--height", strconv.Itoa(c.cfg.Height),
		"--encoding", "png",
		"--output", "-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, c.mapRunError(ctx, err, stderr.String())
	}

	decoded, err := png.Decode(&stdout)
	if err != nil {
		return nil, device.NewError("camera", "capture", device.KindInvalidData,
			fmt.Errorf("decode frame: %w", err))
	}

	rgba, ok := decoded.(*image.RGBA)
	if !ok {
		b := decoded.Bounds()
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, decoded, b.Min, draw.Src)
	}

	c.log.Debugw("frame captured",
		"width", rgba.Bounds().Dx(), "height", rgba.Bounds().Dy(),
		"elapsed", time.Since(start))
	return &Frame{Image: rgba, CapturedAt: start}, nil
}

func (c *Libcamera) mapRunError(ctx context.Context, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return device.NewError("camera", "capture", device.KindTimeout, ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return device.NewError("camera", "capture", device.KindNotConnected,
			fmt.Errorf("%s not found: %w", c.cfg.Binary, err))
	}
	var pathErr *exec.Error
	if errors.As(err, &pathErr) {
		return device.NewError("camera", "capture", device.KindNotConnected, err)
	}
	if stderr != "" {
		err = fmt.Errorf("%w: %s", err, firstLine(stderr))
	}
	return device.NewError("camera", "capture", device.KindFault, err)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

func (c *Libcamera) Close() error { return nil }
