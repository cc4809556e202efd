package camera

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/device"
)

func TestSim_Capture(t *testing.T) {
	cam := NewSim(320, 240)
	f, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if f.Width() != 320 || f.Height() != 240 {
		t.Errorf("frame size = %dx%d, want 320x240", f.Width(), f.Height())
	}
	if f.CapturedAt.IsZero() {
		t.Error("capture timestamp not set")
	}

	// Top-left bar of the test card is white.
	r, g, b, _ := f.Image.At(0, 0).RGBA()
	if r != 0xFFFF || g != 0xFFFF || b != 0xFFFF {
		t.Errorf("top-left pixel = %v %v %v, want white", r, g, b)
	}
}

func TestSim_CaptureCancelled(t *testing.T) {
	cam := NewSim(32, 32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cam.Capture(ctx)
	if kind, ok := device.KindOf(err); !ok || kind != device.KindTimeout {
		t.Errorf("error = %v, want Timeout", err)
	}
}

func TestLibcamera_MissingBinaryIsNotConnected(t *testing.T) {
	cam := NewLibcamera(LibcameraConfig{
		Binary:  filepath.Join(t.TempDir(), "no-such-binary"),
		Width:   64,
		Height:  64,
		Timeout: time.Second,
	}, zap.NewNop().Sugar())

	_, err := cam.Capture(context.Background())
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if kind, ok := device.KindOf(err); !ok || kind != device.KindNotConnected {
		t.Errorf("error = %v, want NotConnected", err)
	}
}

func TestLibcamera_DecodesStubOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	// Stub "camera": a script that writes a PNG to stdout.
	img := NewSim(16, 16)
	frame, err := img.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "frame.png")
	if err := os.WriteFile(pngPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	stub := filepath.Join(dir, "stub-camera")
	script := "#!/bin/sh\ncat " + pngPath + "\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	cam := NewLibcamera(LibcameraConfig{
		Binary:  stub,
		Width:   16,
		Height:  16,
		Timeout: 5 * time.Second,
	}, zap.NewNop().Sugar())

	f, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if f.Width() != 16 || f.Height() != 16 {
		t.Errorf("frame size = %dx%d, want 16x16", f.Width(), f.Height())
	}
}

func TestLibcamera_GarbageOutputIsInvalidData(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	stub := filepath.Join(dir, "stub-camera")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\necho not-a-png\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cam := NewLibcamera(LibcameraConfig{
		Binary:  stub,
		Width:   16,
		Height:  16,
		Timeout: 5 * time.Second,
	}, zap.NewNop().Sugar())

	_, err := cam.Capture(context.Background())
	if kind, ok := device.KindOf(err); !ok || kind != device.KindInvalidData {
		t.Errorf("error = %v, want InvalidData", err)
	}
}
