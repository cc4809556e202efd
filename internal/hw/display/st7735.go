package display

import (
	"fmt"
	"image"
	"time"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/openspectro/fieldbox/internal/hw/gpio"
)

// ST7735 command set (subset used here).
const (
	cmdSWRESET = 0x01
	cmdSLPOUT  = 0x11
	cmdNORON   = 0x13
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A
)

// The 1.44" ST7735S panel maps its visible area with a small offset
// into the controller's 132x132 RAM.
const (
	colOffset = 2
	rowOffset = 1
)

// Config describes the panel wiring.
type Config struct {
	Width, Height int
	DCPin         int // data/command select
	ResetPin      int
	BacklightPin  int // 0 = not wired
	SPISpeedHz    int
}

// ST7735 drives a 1.44" SPI LCD (ST7735S controller) over the
// Raspberry Pi SPI0 bus. Control lines (DC, RESET, backlight) go
// through the GPIO driver; pixel data goes over SPI.
type ST7735 struct {
	gpio gpio.Driver
	cfg  Config
	buf  []byte // RGB565 frame buffer, reused between frames
}

// NewST7735 opens the SPI bus and runs the panel init sequence.
func NewST7735(drv gpio.Driver, cfg Config) (*ST7735, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid panel size %dx%d", cfg.Width, cfg.Height)
	}

	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		return nil, fmt.Errorf("open SPI0: %w", err)
	}
	rpio.SpiSpeed(cfg.SPISpeedHz)
	rpio.SpiChipSelect(0)

	d := &ST7735{
		gpio: drv,
		cfg:  cfg,
		buf:  make([]byte, cfg.Width*cfg.Height*2),
	}

	for _, pin := range []int{cfg.DCPin, cfg.ResetPin} {
		if err := drv.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}
	if cfg.BacklightPin > 0 {
		if err := drv.SetupPin(cfg.BacklightPin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup backlight pin: %w", err)
		}
		_ = drv.WritePin(cfg.BacklightPin, gpio.High)
	}

	if err := d.reset(); err != nil {
		return nil, fmt.Errorf("panel reset: %w", err)
	}
	if err := d.init(); err != nil {
		return nil, fmt.Errorf("panel init: %w", err)
	}
	return d, nil
}

func (d *ST7735) Size() (int, int) { return d.cfg.Width, d.cfg.Height }

// reset pulses the hardware reset line.
func (d *ST7735) reset() error {
	if err := d.gpio.WritePin(d.cfg.ResetPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	if err := d.gpio.WritePin(d.cfg.ResetPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(120 * time.Millisecond)
	return nil
}

func (d *ST7735) init() error {
	d.command(cmdSWRESET)
	time.Sleep(150 * time.Millisecond)
	d.command(cmdSLPOUT)
	time.Sleep(120 * time.Millisecond)
	d.command(cmdCOLMOD, 0x05) // 16-bit/pixel
	d.command(cmdMADCTL, 0xC8) // row/col exchange for HAT orientation, BGR
	d.command(cmdNORON)
	d.command(cmdDISPON)
	time.Sleep(20 * time.Millisecond)
	return nil
}

// command sends a command byte (DC low) followed by its data (DC high).
func (d *ST7735) command(cmd byte, data ...byte) {
	_ = d.gpio.WritePin(d.cfg.DCPin, gpio.Low)
	rpio.SpiTransmit(cmd)
	if len(data) > 0 {
		_ = d.gpio.WritePin(d.cfg.DCPin, gpio.High)
		rpio.SpiTransmit(data...)
	}
}

// setWindow selects the full-screen drawing window.
func (d *ST7735) setWindow() {
	x0 := colOffset
	x1 := colOffset + d.cfg.Width - 1
	y0 := rowOffset
	y1 := rowOffset + d.cfg.Height - 1
	d.command(cmdCASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1))
	d.command(cmdRASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1))
	d.command(cmdRAMWR)
}

// Frame converts the image to RGB565 and streams it to the panel.
func (d *ST7735) Frame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != d.cfg.Width || b.Dy() != d.cfg.Height {
		return fmt.Errorf("frame size %dx%d does not match panel %dx%d",
			b.Dx(), b.Dy(), d.cfg.Width, d.cfg.Height)
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride : (y-b.Min.Y)*img.Stride+d.cfg.Width*4]
		for x := 0; x < d.cfg.Width; x++ {
			r := row[x*4]
			g := row[x*4+1]
			bl := row[x*4+2]
			px := uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(bl)>>3
			d.buf[i] = byte(px >> 8)
			d.buf[i+1] = byte(px)
			i += 2
		}
	}

	d.setWindow()
	_ = d.gpio.WritePin(d.cfg.DCPin, gpio.High)
	rpio.SpiTransmit(d.buf...)
	return nil
}

func (d *ST7735) Close() error {
	if d.cfg.BacklightPin > 0 {
		_ = d.gpio.WritePin(d.cfg.BacklightPin, gpio.Low)
	}
	rpio.SpiEnd(rpio.Spi0)
	return nil
}
