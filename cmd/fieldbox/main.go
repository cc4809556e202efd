package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/config"
	"github.com/openspectro/fieldbox/internal/hw/buttons"
	"github.com/openspectro/fieldbox/internal/hw/camera"
	"github.com/openspectro/fieldbox/internal/hw/display"
	"github.com/openspectro/fieldbox/internal/hw/gpio"
	"github.com/openspectro/fieldbox/internal/hw/spectrometer"
	"github.com/openspectro/fieldbox/internal/logging"
	"github.com/openspectro/fieldbox/internal/logic/machine"
	"github.com/openspectro/fieldbox/internal/observability"
	"github.com/openspectro/fieldbox/internal/storage"
	"github.com/openspectro/fieldbox/internal/sysinfo"
	"github.com/openspectro/fieldbox/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start status server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	simulate := flag.Bool("sim", false, "run with simulated peripherals (no hardware required)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration. Failures here are fatal: a half-configured
	// headless unit is worse than one that refuses to start.
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		stdlog.Fatalf("load config failed: %v", err)
	}
	if *simulate {
		forceSimulation(cfg)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		stdlog.Fatalf("init logging failed: %v", err)
	}
	defer log.Sync()
	log.Infow("starting", "config", *cfgPath, "simulated", *simulate)

	// GPIO driver
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalw("init GPIO failed", "error", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Errorw("closing GPIO driver failed", "error", err)
		}
	}()

	// Display
	disp, err := newDisplayFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalw("init display failed", "error", err)
	}
	defer disp.Close()

	// Buttons
	input, err := buttons.NewController(gpioDriver, buttons.Config{
		Pins: map[buttons.Button]int{
			buttons.Up:    cfg.Buttons.UpPin,
			buttons.Down:  cfg.Buttons.DownPin,
			buttons.Left:  cfg.Buttons.LeftPin,
			buttons.Right: cfg.Buttons.RightPin,
			buttons.Press: cfg.Buttons.PressPin,
			buttons.Key1:  cfg.Buttons.Key1Pin,
			buttons.Key2:  cfg.Buttons.Key2Pin,
			buttons.Key3:  cfg.Buttons.Key3Pin,
		},
		PollInterval: cfg.PollInterval(),
		Debounce:     cfg.Debounce(),
		QueueSize:    cfg.Buttons.QueueSize,
	}, log)
	if err != nil {
		log.Fatalw("init buttons failed", "error", err)
	}

	// Peripherals. A dead spectrometer or camera is not fatal: the unit
	// still boots and reports the failure on screen when asked to use it.
	spectro := newSpectrometerFromConfig(cfg, log)
	defer spectro.Close()
	cam := newCameraFromConfig(cfg, log)
	defer cam.Close()

	// Storage
	store, err := storage.NewManager(cfg.Storage.OutputDir, log)
	if err != nil {
		log.Fatalw("init storage failed", "error", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.New(registry)

	deps := machine.Deps{
		Input:   input,
		Spectro: spectro,
		Camera:  cam,
		Display: disp,
		Store:   store,
		Sys:     sysinfo.NewProvider(cfg.IdleRefresh()),
		Log:     log,
		Metrics: metrics,
	}

	if port := webPort.port(); port > 0 {
		broadcaster := web.NewSnapshotBroadcaster()
		deps.Publish = broadcaster.Publish
		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, registry, log)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Errorw("web server failed", "error", err)
			}
		}()
	}

	input.Start(ctx)

	m := machine.New(deps, machine.Config{
		Tick:        cfg.LoopTick(),
		OverlayHold: cfg.OverlayHold(),
	})
	if err := m.Run(ctx); err != nil {
		log.Fatalw("control loop failed", "error", err)
	}
	log.Infow("shut down cleanly")
}

// forceSimulation rewrites the peripheral selection for hardware-free
// development runs.
func forceSimulation(cfg *config.Config) {
	cfg.Defaults.MockGPIO = true
	cfg.Display.Type = "mock"
	cfg.Spectrometer.Type = "sim"
	cfg.Camera.Type = "sim"
}

// newDisplayFromConfig selects a display implementation based on configuration.
func newDisplayFromConfig(g gpio.Driver, cfg *config.Config) (display.Display, error) {
	switch cfg.Display.Type {
	case "mock":
		return display.NewMock(cfg.Display.WidthPx, cfg.Display.HeightPx), nil
	case "st7735":
		return display.NewST7735(g, display.Config{
			Width:        cfg.Display.WidthPx,
			Height:       cfg.Display.HeightPx,
			DCPin:        cfg.Display.DCPin,
			ResetPin:     cfg.Display.ResetPin,
			BacklightPin: cfg.Display.BacklightPin,
			SPISpeedHz:   cfg.Display.SPISpeedHz,
		})
	default:
		return nil, fmt.Errorf("unknown display type %q", cfg.Display.Type)
	}
}

// newSpectrometerFromConfig selects a spectrometer implementation based on configuration.
func newSpectrometerFromConfig(cfg *config.Config, log *zap.SugaredLogger) spectrometer.Device {
	if cfg.Spectrometer.Type == "sim" {
		return spectrometer.NewSim(cfg.IntegrationTime(), cfg.Spectrometer.WavelengthCoeffs)
	}
	return spectrometer.NewSerialDevice(spectrometer.SerialConfig{
		Port:             cfg.Spectrometer.Port,
		Baud:             cfg.Spectrometer.Baud,
		IntegrationTime:  cfg.IntegrationTime(),
		Timeout:          cfg.SpectrometerTimeout(),
		WavelengthCoeffs: cfg.Spectrometer.WavelengthCoeffs,
	}, log)
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config, log *zap.SugaredLogger) camera.Device {
	if cfg.Camera.Type == "sim" {
		return camera.NewSim(cfg.Camera.WidthPx, cfg.Camera.HeightPx)
	}
	return camera.NewLibcamera(camera.LibcameraConfig{
		Binary:  cfg.Camera.Binary,
		Width:   cfg.Camera.WidthPx,
		Height:  cfg.Camera.HeightPx,
		Timeout: cfg.CameraTimeout(),
	}, log)
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
