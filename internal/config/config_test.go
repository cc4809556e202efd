package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
spectrometer:
  type: sim
camera:
  type: sim
display:
  type: mock
storage:
  output_dir: /tmp/captures
`

func TestLoad_Minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Defaults applied
	if cfg.Buttons.UpPin != 6 || cfg.Buttons.Key3Pin != 16 {
		t.Errorf("button pin defaults not applied: %+v", cfg.Buttons)
	}
	if cfg.Display.WidthPx != 128 || cfg.Display.HeightPx != 128 {
		t.Errorf("display size defaults not applied: %+v", cfg.Display)
	}
	if cfg.Spectrometer.IntegrationTimeMs != 100 {
		t.Errorf("integration time default = %d, want 100", cfg.Spectrometer.IntegrationTimeMs)
	}
	if len(cfg.Spectrometer.WavelengthCoeffs) == 0 {
		t.Error("wavelength coeff defaults not applied")
	}
	if cfg.Camera.Binary != "libcamera-still" {
		t.Errorf("camera binary default = %q", cfg.Camera.Binary)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level default = %q", cfg.Logging.Level)
	}
}

func TestLoad_DurationAccessors(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.Debounce(); got != 30*time.Millisecond {
		t.Errorf("Debounce() = %v, want 30ms", got)
	}
	if got := cfg.PollInterval(); got != 5*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 5ms", got)
	}
	if got := cfg.SpectrometerTimeout(); got != 3*time.Second {
		t.Errorf("SpectrometerTimeout() = %v, want 3s", got)
	}
	if got := cfg.OverlayHold(); got != 2*time.Second {
		t.Errorf("OverlayHold() = %v, want 2s", got)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
buttons:
  debounce_ms: 50
  key1_pin: 12
spectrometer:
  type: serial
  port: /dev/ttyUSB0
  integration_time_ms: 250
camera:
  type: sim
display:
  type: mock
storage:
  output_dir: /data/captures
defaults:
  mock_gpio: true
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Buttons.DebounceMs != 50 {
		t.Errorf("debounce_ms = %d, want 50", cfg.Buttons.DebounceMs)
	}
	if cfg.Buttons.Key1Pin != 12 {
		t.Errorf("key1_pin = %d, want 12", cfg.Buttons.Key1Pin)
	}
	if cfg.IntegrationTime() != 250*time.Millisecond {
		t.Errorf("IntegrationTime() = %v, want 250ms", cfg.IntegrationTime())
	}
	if !cfg.Defaults.MockGPIO {
		t.Error("mock_gpio should be true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing output dir",
			yaml: "spectrometer: {type: sim}\ncamera: {type: sim}\ndisplay: {type: mock}\n",
			want: "output_dir",
		},
		{
			name: "serial without port",
			yaml: "spectrometer: {type: serial}\ncamera: {type: sim}\ndisplay: {type: mock}\nstorage: {output_dir: /tmp}\n",
			want: "port",
		},
		{
			name: "bad display type",
			yaml: "spectrometer: {type: sim}\ncamera: {type: sim}\ndisplay: {type: ssd1306}\nstorage: {output_dir: /tmp}\n",
			want: "display.type",
		},
		{
			name: "bad camera type",
			yaml: "spectrometer: {type: sim}\ncamera: {type: webcam}\ndisplay: {type: mock}\nstorage: {output_dir: /tmp}\n",
			want: "camera.type",
		},
		{
			name: "integration time too long",
			yaml: "spectrometer: {type: sim, integration_time_ms: 60000}\ncamera: {type: sim}\ndisplay: {type: mock}\nstorage: {output_dir: /tmp}\n",
			want: "integration_time_ms",
		},
		{
			name: "bad log level",
			yaml: "spectrometer: {type: sim}\ncamera: {type: sim}\ndisplay: {type: mock}\nstorage: {output_dir: /tmp}\nlogging: {level: loud}\n",
			want: "logging.level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "buttons: [nope")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
