package gpio

import "sync"

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates how a GPIO line is configured.
type PinMode int

const (
	Input PinMode = iota
	InputPullUp
	Output
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		return NewMock(), nil
	}
	return NewRPiDriver()
}

// Write records a single WritePin call.
type Write struct {
	Pin   int
	Level Level
}

// MockDriver is an in-memory implementation used for development and
// tests. Input lines default to the level their pull implies (pull-up
// inputs read High until a test drives them Low).
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	writes []Write
}

func NewMock() *MockDriver {
	return &MockDriver{
		modes:  make(map[int]PinMode),
		levels: make(map[int]Level),
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	if _, ok := m.levels[pin]; !ok && mode == InputPullUp {
		m.levels[pin] = High
	}
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
	m.writes = append(m.writes, Write{Pin: pin, Level: level})
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lvl, ok := m.levels[pin]; ok {
		return lvl, nil
	}
	if m.modes[pin] == InputPullUp {
		return High, nil
	}
	return Low, nil
}

func (m *MockDriver) Close() error { return nil }

// SetLevel drives an input line from a test (e.g. simulates a button
// press by pulling a pull-up line Low).
func (m *MockDriver) SetLevel(pin int, level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
}

// Writes returns a copy of all recorded WritePin calls.
func (m *MockDriver) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}
