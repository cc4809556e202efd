package storage

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/hw/camera"
	"github.com/openspectro/fieldbox/internal/hw/spectrometer"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func testSample(ts time.Time) *spectrometer.Sample {
	n := 64
	wl := make([]float64, n)
	in := make([]float64, n)
	for i := range wl {
		wl[i] = 400 + float64(i)
		in[i] = float64(100 + i*10)
	}
	return &spectrometer.Sample{
		Wavelengths:     wl,
		Intensities:     in,
		IntegrationTime: 100 * time.Millisecond,
		CapturedAt:      ts,
	}
}

func testFrame(ts time.Time) *camera.Frame {
	return &camera.Frame{
		Image:      image.NewRGBA(image.Rect(0, 0, 32, 24)),
		CapturedAt: ts,
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSaveSpectrum_CreatesPlotAndSidecar(t *testing.T) {
	m := testManager(t)
	ts := time.Date(2024, 12, 12, 10, 25, 29, 0, time.UTC)

	path, err := m.SaveSpectrum(testSample(ts))
	if err != nil {
		t.Fatalf("SaveSpectrum: %v", err)
	}
	if filepath.Base(path) != "spectrum_20241212102529.png" {
		t.Errorf("path = %q, want spectrum_20241212102529.png", filepath.Base(path))
	}

	names := listDir(t, m.Dir())
	if len(names) != 2 {
		t.Fatalf("dir has %v, want plot + sidecar", names)
	}

	csvData, err := os.ReadFile(filepath.Join(m.Dir(), "spectrum_20241212102529.csv"))
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if lines[0] != "wavelength_nm,counts" {
		t.Errorf("csv header = %q", lines[0])
	}
	if len(lines) != 65 { // header + 64 points
		t.Errorf("csv rows = %d, want 65", len(lines))
	}
	if lines[1] != "400.000,100.0" {
		t.Errorf("first row = %q", lines[1])
	}
}

func TestSaveSpectrum_SameSecondDoesNotOverwrite(t *testing.T) {
	m := testManager(t)
	ts := time.Date(2024, 12, 12, 10, 25, 29, 0, time.UTC)

	first, err := m.SaveSpectrum(testSample(ts))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	second, err := m.SaveSpectrum(testSample(ts))
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if first == second {
		t.Fatalf("second save reused %q", first)
	}
	if filepath.Base(second) != "spectrum_20241212102529_1.png" {
		t.Errorf("second path = %q, want _1 suffix", filepath.Base(second))
	}
	if len(listDir(t, m.Dir())) != 4 {
		t.Errorf("dir = %v, want 2 plots + 2 sidecars", listDir(t, m.Dir()))
	}
}

func TestSavePhoto(t *testing.T) {
	m := testManager(t)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := m.SavePhoto(testFrame(ts))
	if err != nil {
		t.Fatalf("SavePhoto: %v", err)
	}
	if filepath.Base(path) != "photo_20250102030405.png" {
		t.Errorf("path = %q", filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("saved photo is empty")
	}
}

func TestSavePhoto_SameSecondSuffix(t *testing.T) {
	m := testManager(t)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := m.SavePhoto(testFrame(ts)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	names := listDir(t, m.Dir())
	want := []string{
		"photo_20250102030405.png",
		"photo_20250102030405_1.png",
		"photo_20250102030405_2.png",
	}
	for _, w := range want {
		found := false
		for _, n := range names {
			if n == w {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %q in %v", w, names)
		}
	}
}

func TestSave_NoPartialFilesLeft(t *testing.T) {
	m := testManager(t)
	if _, err := m.SaveSpectrum(testSample(time.Now())); err != nil {
		t.Fatal(err)
	}
	for _, n := range listDir(t, m.Dir()) {
		if strings.HasPrefix(n, ".partial-") {
			t.Errorf("temp file %q left behind", n)
		}
	}
}

func TestNewManager_UnwritablePath(t *testing.T) {
	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewManager(filepath.Join(blocker, "captures"), zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
	if _, ok := KindOf(err); !ok {
		t.Errorf("error %v is not a typed storage error", err)
	}
}

func TestErrorKindStrings(t *testing.T) {
	kinds := map[ErrorKind]string{
		KindDiskFull:         "disk full",
		KindPermissionDenied: "permission denied",
		KindPathNotWritable:  "path not writable",
		KindConflict:         "name conflict",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(k), k.String(), want)
		}
	}
}
