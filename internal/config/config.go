package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ButtonsConfig maps the physical keys to BCM pins and sets the polling
// behaviour. Defaults match the Waveshare 1.44" LCD HAT (joystick + 3 keys).
type ButtonsConfig struct {
	UpPin    int `yaml:"up_pin"`
	DownPin  int `yaml:"down_pin"`
	LeftPin  int `yaml:"left_pin"`
	RightPin int `yaml:"right_pin"`
	PressPin int `yaml:"press_pin"`
	Key1Pin  int `yaml:"key1_pin"`
	Key2Pin  int `yaml:"key2_pin"`
	Key3Pin  int `yaml:"key3_pin"`

	PollIntervalMs int `yaml:"poll_interval_ms"` // line sampling period
	DebounceMs     int `yaml:"debounce_ms"`      // stable-state window before an edge is reported
	QueueSize      int `yaml:"queue_size"`       // pending event buffer
}

// DisplayConfig describes the LCD panel.
// Type selects a concrete implementation ("st7735" or "mock").
type DisplayConfig struct {
	Type         string `yaml:"type"`
	WidthPx      int    `yaml:"width_px"`
	HeightPx     int    `yaml:"height_px"`
	DCPin        int    `yaml:"dc_pin"` // data/command select line
	ResetPin     int    `yaml:"reset_pin"`
	BacklightPin int    `yaml:"backlight_pin"` // 0 = not wired
	SPISpeedHz   int    `yaml:"spi_speed_hz"`
}

// SpectrometerConfig describes the acquisition device.
// Type selects a concrete implementation ("serial" or "sim").
type SpectrometerConfig struct {
	Type              string    `yaml:"type"`
	Port              string    `yaml:"port"` // e.g. /dev/ttyUSB0
	Baud              int       `yaml:"baud"`
	IntegrationTimeMs int       `yaml:"integration_time_ms"`
	TimeoutMs         int       `yaml:"timeout_ms"`
	WavelengthCoeffs  []float64 `yaml:"wavelength_coeffs"` // polynomial over pixel index, nm
}

// CameraConfig describes the still-capture device.
// Type selects a concrete implementation ("libcamera" or "sim").
type CameraConfig struct {
	Type      string `yaml:"type"`
	Binary    string `yaml:"binary"` // capture CLI, default libcamera-still
	WidthPx   int    `yaml:"width_px"`
	HeightPx  int    `yaml:"height_px"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// StorageConfig locates the capture directory.
type StorageConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// LoggingConfig controls the zap logger. The unit runs headless, so the
// file sink is the primary log destination.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug|info|warn|error
	File       string `yaml:"file"`  // empty = console only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	MockGPIO      bool `yaml:"mock_gpio"`       // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	LoopTickMs    int  `yaml:"loop_tick_ms"`    // control loop idle period
	IdleRefreshMs int  `yaml:"idle_refresh_ms"` // sysinfo cache refresh for IDLE sub-views
	OverlayHoldMs int  `yaml:"overlay_hold_ms"` // how long transient confirmations stay on screen
}

// Config aggregates all application configuration.
type Config struct {
	Buttons      ButtonsConfig      `yaml:"buttons"`
	Display      DisplayConfig      `yaml:"display"`
	Spectrometer SpectrometerConfig `yaml:"spectrometer"`
	Camera       CameraConfig       `yaml:"camera"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
	Defaults     DefaultsConfig     `yaml:"defaults"`
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults validates required fields and fills omitted values.
func (c *Config) applyDefaults() error {
	// Waveshare 1.44" LCD HAT pinout (BCM)
	b := &c.Buttons
	if b.UpPin == 0 {
		b.UpPin = 6
	}
	if b.DownPin == 0 {
		b.DownPin = 19
	}
	if b.LeftPin == 0 {
		b.LeftPin = 5
	}
	if b.RightPin == 0 {
		b.RightPin = 26
	}
	if b.PressPin == 0 {
		b.PressPin = 13
	}
	if b.Key1Pin == 0 {
		b.Key1Pin = 21
	}
	if b.Key2Pin == 0 {
		b.Key2Pin = 20
	}
	if b.Key3Pin == 0 {
		b.Key3Pin = 16
	}
	if b.PollIntervalMs <= 0 {
		b.PollIntervalMs = 5
	}
	if b.DebounceMs <= 0 {
		b.DebounceMs = 30
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 32
	}

	d := &c.Display
	if d.Type == "" {
		d.Type = "st7735"
	}
	if d.Type != "st7735" && d.Type != "mock" {
		return fmt.Errorf("display.type must be st7735 or mock, got %q", d.Type)
	}
	if d.WidthPx <= 0 {
		d.WidthPx = 128
	}
	if d.HeightPx <= 0 {
		d.HeightPx = 128
	}
	if d.DCPin == 0 {
		d.DCPin = 25
	}
	if d.ResetPin == 0 {
		d.ResetPin = 27
	}
	if d.BacklightPin == 0 {
		d.BacklightPin = 24
	}
	if d.SPISpeedHz <= 0 {
		d.SPISpeedHz = 16000000
	}

	s := &c.Spectrometer
	if s.Type == "" {
		s.Type = "serial"
	}
	if s.Type != "serial" && s.Type != "sim" {
		return fmt.Errorf("spectrometer.type must be serial or sim, got %q", s.Type)
	}
	if s.Type == "serial" && s.Port == "" {
		return fmt.Errorf("spectrometer.port is required for type serial")
	}
	if s.Baud <= 0 {
		s.Baud = 115200
	}
	if s.IntegrationTimeMs <= 0 {
		s.IntegrationTimeMs = 100
	}
	if s.IntegrationTimeMs > 10000 {
		return fmt.Errorf("spectrometer.integration_time_ms must be <= 10000, got %d", s.IntegrationTimeMs)
	}
	if s.TimeoutMs <= 0 {
		s.TimeoutMs = 3000
	}
	if len(s.WavelengthCoeffs) == 0 {
		// generic VIS range: starts at 340nm, ~0.38nm per pixel
		s.WavelengthCoeffs = []float64{340.0, 0.38}
	}

	cam := &c.Camera
	if cam.Type == "" {
		cam.Type = "libcamera"
	}
	if cam.Type != "libcamera" && cam.Type != "sim" {
		return fmt.Errorf("camera.type must be libcamera or sim, got %q", cam.Type)
	}
	if cam.Binary == "" {
		cam.Binary = "libcamera-still"
	}
	if cam.WidthPx <= 0 {
		cam.WidthPx = 1024
	}
	if cam.HeightPx <= 0 {
		cam.HeightPx = 768
	}
	if cam.TimeoutMs <= 0 {
		cam.TimeoutMs = 5000
	}

	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}

	l := &c.Logging
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", l.Level)
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = 3
	}

	def := &c.Defaults
	if def.LoopTickMs <= 0 {
		def.LoopTickMs = 20
	}
	if def.IdleRefreshMs <= 0 {
		def.IdleRefreshMs = 1000
	}
	if def.OverlayHoldMs <= 0 {
		def.OverlayHoldMs = 2000
	}

	return nil
}

// PollInterval returns the button sampling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Buttons.PollIntervalMs) * time.Millisecond
}

// Debounce returns the button stable-state window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Buttons.DebounceMs) * time.Millisecond
}

// IntegrationTime returns the spectrometer integration time.
func (c *Config) IntegrationTime() time.Duration {
	return time.Duration(c.Spectrometer.IntegrationTimeMs) * time.Millisecond
}

// SpectrometerTimeout returns the per-acquisition deadline.
func (c *Config) SpectrometerTimeout() time.Duration {
	return time.Duration(c.Spectrometer.TimeoutMs) * time.Millisecond
}

// CameraTimeout returns the per-capture deadline.
func (c *Config) CameraTimeout() time.Duration {
	return time.Duration(c.Camera.TimeoutMs) * time.Millisecond
}

// LoopTick returns the control loop idle period.
func (c *Config) LoopTick() time.Duration {
	return time.Duration(c.Defaults.LoopTickMs) * time.Millisecond
}

// IdleRefresh returns the sysinfo cache refresh period.
func (c *Config) IdleRefresh() time.Duration {
	return time.Duration(c.Defaults.IdleRefreshMs) * time.Millisecond
}

// OverlayHold returns how long transient confirmations stay visible.
func (c *Config) OverlayHold() time.Duration {
	return time.Duration(c.Defaults.OverlayHoldMs) * time.Millisecond
}
