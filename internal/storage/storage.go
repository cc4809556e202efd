// Package storage persists samples and photos as write-once,
// timestamp-named artifacts in the capture directory.
package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/hw/camera"
	"github.com/openspectro/fieldbox/internal/hw/spectrometer"
	"github.com/openspectro/fieldbox/internal/ui"
)

// ErrorKind classifies storage failures.
type ErrorKind int

const (
	KindDiskFull ErrorKind = iota
	KindPermissionDenied
	KindPathNotWritable
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindDiskFull:
		return "disk full"
	case KindPermissionDenied:
		return "permission denied"
	case KindPathNotWritable:
		return "path not writable"
	case KindConflict:
		return "name conflict"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a typed storage failure.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, if it wraps a storage Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

const (
	timestampLayout = "20060102150405"
	plotWidth       = 800
	plotHeight      = 480
	maxNameSuffix   = 99
)

// Manager writes artifacts to the capture directory. Files appear
// atomically (temp file + rename) and are never overwritten: a second
// save within the same second gets a numeric suffix.
type Manager struct {
	dir string
	log *zap.SugaredLogger
}

// NewManager creates the capture directory if needed.
func NewManager(dir string, log *zap.SugaredLogger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, mapErr(dir, err)
	}
	return &Manager{dir: dir, log: log}, nil
}

// Dir returns the capture directory.
func (m *Manager) Dir() string { return m.dir }

// SaveSpectrum renders the sample to a plot PNG plus a numeric CSV
// sidecar sharing the same base name. It returns the plot path.
func (m *Manager) SaveSpectrum(s *spectrometer.Sample) (string, error) {
	base, err := m.allocate("spectrum_"+s.CapturedAt.Format(timestampLayout), ".png")
	if err != nil {
		return "", err
	}

	var plot bytes.Buffer
	if err := png.Encode(&plot, ui.RenderPlotImage(s, plotWidth, plotHeight)); err != nil {
		return "", &Error{Kind: KindPathNotWritable, Path: base + ".png", Err: err}
	}
	if err := m.writeAtomic(base+".png", plot.Bytes()); err != nil {
		return "", err
	}

	if err := m.writeAtomic(base+".csv", spectrumCSV(s)); err != nil {
		// The plot landed; report the sidecar failure rather than
		// leave it half-saved silently.
		return "", err
	}

	m.log.Infow("spectrum saved", "path", base+".png", "points", s.Points())
	return base + ".png", nil
}

// SavePhoto writes the frame as a PNG and returns its path.
func (m *Manager) SavePhoto(f *camera.Frame) (string, error) {
	base, err := m.allocate("photo_"+f.CapturedAt.Format(timestampLayout), ".png")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image); err != nil {
		return "", &Error{Kind: KindPathNotWritable, Path: base + ".png", Err: err}
	}
	if err := m.writeAtomic(base+".png", buf.Bytes()); err != nil {
		return "", err
	}

	m.log.Infow("photo saved", "path", base+".png",
		"width", f.Width(), "height", f.Height())
	return base + ".png", nil
}

// allocate picks a free base path for name+ext, appending _1.._99 when
// a save in the same second already claimed the plain name.
func (m *Manager) allocate(name, ext string) (string, error) {
	base := filepath.Join(m.dir, name)
	if !exists(base+ext) && !exists(base+".csv") {
		return base, nil
	}
	for i := 1; i <= maxNameSuffix; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !exists(candidate+ext) && !exists(candidate+".csv") {
			return candidate, nil
		}
	}
	return "", &Error{
		Kind: KindConflict,
		Path: base + ext,
		Err:  fmt.Errorf("no free name after %d attempts", maxNameSuffix),
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeAtomic writes data to a temp file in the capture directory and
// renames it into place, so a crash mid-write never leaves a truncated
// file visible under the final name.
func (m *Manager) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(m.dir, ".partial-*")
	if err != nil {
		return mapErr(path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return mapErr(path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return mapErr(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return mapErr(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return mapErr(path, err)
	}
	return nil
}

// mapErr converts OS-level failures into the storage taxonomy.
func mapErr(path string, err error) error {
	kind := KindPathNotWritable
	switch {
	case errors.Is(err, syscall.ENOSPC):
		kind = KindDiskFull
	case errors.Is(err, fs.ErrPermission):
		kind = KindPermissionDenied
	}
	return &Error{Kind: kind, Path: path, Err: err}
}

// spectrumCSV serializes the sample as wavelength_nm,counts rows.
func spectrumCSV(s *spectrometer.Sample) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"wavelength_nm", "counts"})
	for i := range s.Wavelengths {
		_ = w.Write([]string{
			strconv.FormatFloat(s.Wavelengths[i], 'f', 3, 64),
			strconv.FormatFloat(s.Intensities[i], 'f', 1, 64),
		})
	}
	w.Flush()
	return buf.Bytes()
}
