package spectrometer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/device"
)

// Wire protocol of the USB-serial spectrometer head:
//
//	request:  'S' 'P' 0x01  uint16le integration_ms
//	response: 0xA5 0x5A  status  uint16le pixel_count
//	          pixel_count * uint16le counts
//	          uint16le checksum (sum of count words mod 65536)
//
// status 0 = ok, anything else is a head-side fault.
const (
	opAcquire   = 0x01
	respMagic0  = 0xA5
	respMagic1  = 0x5A
	maxPixels   = 8192
	headerBytes = 5
)

// SerialConfig configures the serial adapter.
type SerialConfig struct {
	Port             string
	Baud             int
	IntegrationTime  time.Duration
	Timeout          time.Duration // per-acquisition deadline, imposed here
	WavelengthCoeffs []float64
}

// SerialDevice drives the spectrometer over a serial port. The port is
// opened lazily and dropped on any error so the next acquisition starts
// from a clean reconnect.
type SerialDevice struct {
	cfg SerialConfig
	log *zap.SugaredLogger
	rwc io.ReadWriteCloser

	// openPort is swappable for tests.
	openPort func() (io.ReadWriteCloser, error)
}

func NewSerialDevice(cfg SerialConfig, log *zap.SugaredLogger) *SerialDevice {
	d := &SerialDevice{cfg: cfg, log: log}
	d.openPort = func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{
			Name:        cfg.Port,
			Baud:        cfg.Baud,
			ReadTimeout: 100 * time.Millisecond,
		})
	}
	return d
}

// Acquire runs one timed measurement. Always returns either a validated
// sample or a typed *device.Error.
func (d *SerialDevice) Acquire(ctx context.Context) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, device.NewError("spectrometer", "acquire", device.KindTimeout, err)
	}

	if d.rwc == nil {
		rwc, err := d.openPort()
		if err != nil {
			return nil, device.NewError("spectrometer", "open", device.KindNotConnected, err)
		}
		d.rwc = rwc
		d.log.Infow("spectrometer port opened", "port", d.cfg.Port)
	}

	start := time.Now()
	deadline := start.Add(d.cfg.Timeout + d.cfg.IntegrationTime)

	req := make([]byte, headerBytes)
	req[0], req[1], req[2] = 'S', 'P', opAcquire
	binary.LittleEndian.PutUint16(req[3:], uint16(d.cfg.IntegrationTime.Milliseconds()))
	if _, err := d.rwc.Write(req); err != nil {
		d.drop()
		return nil, device.NewError("spectrometer", "acquire", device.KindNotConnected,
			fmt.Errorf("write command: %w", err))
	}

	header := make([]byte, headerBytes)
	if err := d.readFull(header, deadline); err != nil {
		d.drop()
		return nil, err
	}
	if header[0] != respMagic0 || header[1] != respMagic1 {
		d.drop()
		return nil, device.NewError("spectrometer", "acquire", device.KindFault,
			fmt.Errorf("bad frame magic %#x %#x", header[0], header[1]))
	}
	if status := header[2]; status != 0 {
		d.drop()
		return nil, device.NewError("spectrometer", "acquire", device.KindFault,
			fmt.Errorf("head reported status %#x", status))
	}
	count := int(binary.LittleEndian.Uint16(header[3:]))
	if count == 0 || count > maxPixels {
		d.drop()
		return nil, device.NewError("spectrometer", "acquire", device.KindInvalidData,
			fmt.Errorf("implausible pixel count %d", count))
	}

	payload := make([]byte, count*2+2) // counts + checksum
	if err := d.readFull(payload, deadline); err != nil {
		d.drop()
		return nil, err
	}

	var sum uint16
	counts := make([]float64, count)
	for i := 0; i < count; i++ {
		w := binary.LittleEndian.Uint16(payload[i*2:])
		sum += w
		counts[i] = float64(w)
	}
	if got := binary.LittleEndian.Uint16(payload[count*2:]); got != sum {
		d.drop()
		return nil, device.NewError("spectrometer", "acquire", device.KindFault,
			fmt.Errorf("checksum mismatch: frame %#x, computed %#x", got, sum))
	}

	sample := &Sample{
		Wavelengths:     wavelengthAxis(d.cfg.WavelengthCoeffs, count),
		Intensities:     counts,
		IntegrationTime: d.cfg.IntegrationTime,
		CapturedAt:      start,
	}
	if err := Validate(sample); err != nil {
		return nil, err
	}
	return sample, nil
}

// readFull fills buf, treating a quiet line past the deadline as a
// timeout. The serial port itself only has a short read timeout; the
// hard per-call bound lives here.
func (d *SerialDevice) readFull(buf []byte, deadline time.Time) error {
	off := 0
	for off < len(buf) {
		if time.Now().After(deadline) {
			return device.NewError("spectrometer", "read", device.KindTimeout,
				fmt.Errorf("got %d of %d bytes before deadline", off, len(buf)))
		}
		n, err := d.rwc.Read(buf[off:])
		off += n
		if err != nil && err != io.EOF {
			return device.NewError("spectrometer", "read", device.KindNotConnected, err)
		}
		// n==0 with nil/EOF error is the port's own short timeout; retry
		// until the deadline fires.
	}
	return nil
}

// drop closes the port so the next Acquire reconnects.
func (d *SerialDevice) drop() {
	if d.rwc != nil {
		_ = d.rwc.Close()
		d.rwc = nil
	}
}

func (d *SerialDevice) Close() error {
	if d.rwc == nil {
		return nil
	}
	err := d.rwc.Close()
	d.rwc = nil
	return err
}
