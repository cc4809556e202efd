// Package buttons polls physical button lines, debounces them and
// queues typed press/release events for the control loop.
package buttons

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openspectro/fieldbox/internal/hw/gpio"
)

// Button identifies a physical key on the HAT.
type Button int

const (
	Up Button = iota
	Down
	Left
	Right
	Press // joystick center
	Key1
	Key2
	Key3
)

var buttonNames = map[Button]string{
	Up:    "UP",
	Down:  "DOWN",
	Left:  "LEFT",
	Right: "RIGHT",
	Press: "PRESS",
	Key1:  "KEY1",
	Key2:  "KEY2",
	Key3:  "KEY3",
}

func (b Button) String() string {
	if n, ok := buttonNames[b]; ok {
		return n
	}
	return fmt.Sprintf("BUTTON(%d)", int(b))
}

// All lists every button, in a stable order.
var All = []Button{Up, Down, Left, Right, Press, Key1, Key2, Key3}

// Edge is the direction of a button transition.
type Edge int

const (
	EdgePress Edge = iota
	EdgeRelease
)

func (e Edge) String() string {
	if e == EdgePress {
		return "press"
	}
	return "release"
}

// Event is a single debounced button transition. Seq increases
// monotonically across all events; the state machine uses it to detect
// presses that were queued before the current screen appeared.
type Event struct {
	Button Button
	Edge   Edge
	Time   time.Time
	Seq    uint64
}

// Config sets up the controller.
type Config struct {
	Pins         map[Button]int // BCM pin per button, active low with pull-up
	PollInterval time.Duration
	Debounce     time.Duration // line must hold a new level this long before the edge is reported
	QueueSize    int
}

// lineState tracks debouncing for one button line.
type lineState struct {
	stable    gpio.Level // last reported level
	candidate gpio.Level // last raw sample
	since     time.Time  // when candidate was first seen
}

// Controller samples the configured lines and exposes a non-blocking
// event queue. Sampling runs on its own ticker goroutine so presses that
// arrive while the control loop is blocked inside a device call are
// still queued; the queue itself is only ever drained by the loop.
type Controller struct {
	gpio gpio.Driver
	cfg  Config
	log  *zap.SugaredLogger

	mu    sync.Mutex
	lines map[Button]*lineState
	queue []Event
	seq   uint64
}

// NewController configures every button line as a pull-up input.
func NewController(drv gpio.Driver, cfg Config, log *zap.SugaredLogger) (*Controller, error) {
	if len(cfg.Pins) == 0 {
		return nil, fmt.Errorf("no button pins configured")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 30 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}

	c := &Controller{
		gpio:  drv,
		cfg:   cfg,
		log:   log,
		lines: make(map[Button]*lineState, len(cfg.Pins)),
	}

	for btn, pin := range cfg.Pins {
		if err := drv.SetupPin(pin, gpio.InputPullUp); err != nil {
			return nil, fmt.Errorf("setup pin %d (%s): %w", pin, btn, err)
		}
		// Lines idle High; pressed is Low.
		c.lines[btn] = &lineState{stable: gpio.High, candidate: gpio.High}
	}

	return c, nil
}

// Start launches the sampling loop. It returns immediately; sampling
// stops when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.Poll(now)
			}
		}
	}()
}

// Poll samples every line once and emits debounced edges. Exposed so
// tests can drive it with synthetic clocks.
func (c *Controller) Poll(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for btn, pin := range c.cfg.Pins {
		raw, err := c.gpio.ReadPin(pin)
		if err != nil {
			c.log.Warnw("button read failed", "button", btn.String(), "pin", pin, "error", err)
			continue
		}

		line := c.lines[btn]
		if raw != line.candidate {
			line.candidate = raw
			line.since = now
			continue
		}
		if raw == line.stable {
			continue
		}
		if now.Sub(line.since) < c.cfg.Debounce {
			continue
		}

		line.stable = raw
		edge := EdgeRelease
		if raw == gpio.Low { // active low
			edge = EdgePress
		}
		c.push(Event{Button: btn, Edge: edge, Time: now})
	}
}

// push appends to the queue, dropping the oldest event on overflow. The
// caller holds c.mu.
func (c *Controller) push(ev Event) {
	c.seq++
	ev.Seq = c.seq
	if len(c.queue) >= c.cfg.QueueSize {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		c.log.Warnw("button queue full, dropping oldest event",
			"button", dropped.Button.String(), "edge", dropped.Edge.String())
	}
	c.queue = append(c.queue, ev)
}

// Next pops the oldest pending event. It never blocks.
func (c *Controller) Next() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return Event{}, false
	}
	ev := c.queue[0]
	c.queue = c.queue[1:]
	return ev, true
}

// LastSeq returns the sequence number of the most recently queued event.
// Events at or below a snapshot of this value were pressed before the
// snapshot was taken.
func (c *Controller) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}
