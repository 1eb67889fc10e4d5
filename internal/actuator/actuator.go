// Package actuator drives the discrete outputs of the flight computer: the
// parachute release and the motor burnout indicator.
package actuator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
)

// Pin is the part of a GPIO line used by an output
type Pin interface {
	fmt.Stringer
	Out(l gpio.Level) error
}

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	return hostErr
}

// GPIO is a discrete output on a GPIO pin. An active-low output idles high
// and is driven low when asserted.
type GPIO struct {
	pin       Pin
	activeLow bool
	asserted  atomic.Bool
	logger    *slog.Logger
}

var _ flight.Signal = (*GPIO)(nil)

func WithLogger(logger *slog.Logger) func(*GPIO) {
	return func(g *GPIO) {
		g.logger = logger
	}
}

// Open looks the pin up by name in the periph registry and drives it idle
func Open(name string, activeLow bool, options ...func(*GPIO)) (*GPIO, error) {
	if err := initHost(); err != nil {
		return nil, fault.New(fault.FatalInit, "actuator", fmt.Errorf("initializing host: %w", err))
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fault.New(fault.FatalInit, "actuator", fmt.Errorf("pin %q not found", name))
	}

	return NewGPIO(pin, activeLow, options...)
}

// NewGPIO wraps pin and drives it to its idle level
func NewGPIO(pin Pin, activeLow bool, options ...func(*GPIO)) (*GPIO, error) {
	g := GPIO{
		pin:       pin,
		activeLow: activeLow,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(&g)
	}

	if err := pin.Out(g.level(false)); err != nil {
		return nil, fault.New(fault.FatalInit, "actuator", fmt.Errorf("driving %s idle: %w", pin, err))
	}
	return &g, nil
}

func (g *GPIO) level(asserted bool) gpio.Level {
	if g.activeLow {
		return gpio.Level(!asserted)
	}
	return gpio.Level(asserted)
}

func (g *GPIO) Assert() error {
	if err := g.pin.Out(g.level(true)); err != nil {
		return fmt.Errorf("asserting %s: %w", g.pin, err)
	}
	g.asserted.Store(true)
	g.logger.Info("output asserted", slog.String("pin", g.pin.String()), slog.String("level", g.level(true).String()))
	return nil
}

func (g *GPIO) Release() error {
	if err := g.pin.Out(g.level(false)); err != nil {
		return fmt.Errorf("releasing %s: %w", g.pin, err)
	}
	g.asserted.Store(false)
	g.logger.Info("output released", slog.String("pin", g.pin.String()), slog.String("level", g.level(false).String()))
	return nil
}

// Asserted reports the last level driven
func (g *GPIO) Asserted() bool {
	return g.asserted.Load()
}

// LogSignal is an output that only logs, for bench runs without GPIO
type LogSignal struct {
	name     string
	logger   *slog.Logger
	asserted atomic.Bool
}

var _ flight.Signal = (*LogSignal)(nil)

func NewLogSignal(name string, logger *slog.Logger) *LogSignal {
	return &LogSignal{name: name, logger: logger}
}

func (s *LogSignal) Assert() error {
	s.asserted.Store(true)
	s.logger.Info("output asserted", slog.String("output", s.name))
	return nil
}

func (s *LogSignal) Release() error {
	s.asserted.Store(false)
	s.logger.Info("output released", slog.String("output", s.name))
	return nil
}

func (s *LogSignal) Asserted() bool {
	return s.asserted.Load()
}

// Multi drives several outputs as one. Every output is driven even if one
// of them fails.
type Multi []flight.Signal

func (m Multi) Assert() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Assert())
	}
	return errors.Join(errs...)
}

func (m Multi) Release() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Release())
	}
	return errors.Join(errs...)
}
