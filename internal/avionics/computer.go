// Package avionics runs the flight computer: the periodic telemetry cycle
// that drives the flight-phase machine and the command receive loop.
package avionics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/auxlink"
	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
	"github.com/roman-kulish/rocket-telemetry/internal/sensor"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

// Config holds the task cadences of the flight computer
type Config struct {
	TransmitInterval time.Duration `yaml:"transmitInterval"`
	ReceiveInterval  time.Duration `yaml:"receiveInterval"`
	ReceiveTimeout   time.Duration `yaml:"receiveTimeout"`
	PayloadLimit     int           `yaml:"payloadLimit"`
}

func DefaultConfig() Config {
	return Config{
		TransmitInterval: time.Second,
		ReceiveInterval:  time.Second,
		ReceiveTimeout:   200 * time.Millisecond,
		PayloadLimit:     telemetry.MaxPayload,
	}
}

func (c Config) Validate() error {
	switch {
	case c.TransmitInterval <= 0:
		return fmt.Errorf("transmitInterval must be positive")
	case c.ReceiveInterval <= 0:
		return fmt.Errorf("receiveInterval must be positive")
	case c.ReceiveTimeout <= 0:
		return fmt.Errorf("receiveTimeout must be positive")
	case c.PayloadLimit <= 0 || c.PayloadLimit > telemetry.MaxPayload:
		return fmt.Errorf("payloadLimit must be within 1..%d", telemetry.MaxPayload)
	}
	return nil
}

// OverrideSlot hands a commanded phase from the receive task to the
// transmit task, which alone drives the machine. A newer override replaces
// one not yet applied.
type OverrideSlot struct {
	v atomic.Int32
}

const noOverride = -1

func (s *OverrideSlot) init() {
	s.v.Store(noOverride)
}

func (s *OverrideSlot) Set(p flight.Phase) {
	s.v.Store(int32(p))
}

// Take returns the pending override, if any, and clears it
func (s *OverrideSlot) Take() *flight.Phase {
	v := s.v.Swap(noOverride)
	if v == noOverride {
		return nil
	}
	p := flight.Phase(v)
	return &p
}

func WithLogger(logger *slog.Logger) func(*Computer) {
	return func(c *Computer) {
		c.logger = logger
	}
}

func WithConfig(cfg Config) func(*Computer) {
	return func(c *Computer) {
		c.cfg = cfg
	}
}

// WithAux embeds the auxiliary status in telemetry and forwards image
// commands to the auxiliary task
func WithAux(ch *auxlink.Channel) func(*Computer) {
	return func(c *Computer) {
		c.aux = ch
	}
}

// WithClock replaces the clock used for frame timestamps
func WithClock(now func() time.Time) func(*Computer) {
	return func(c *Computer) {
		c.now = now
	}
}

// Computer is the flight computer task set
type Computer struct {
	machine *flight.Machine
	sensors sensor.Suite
	arbiter *radio.Arbiter
	aux     *auxlink.Channel

	Override OverrideSlot

	cfg    Config
	now    func() time.Time
	boot   time.Time
	logger *slog.Logger
}

func NewComputer(machine *flight.Machine, sensors sensor.Suite, arbiter *radio.Arbiter, options ...func(*Computer)) *Computer {
	c := Computer{
		machine: machine,
		sensors: sensors,
		arbiter: arbiter,
		cfg:     DefaultConfig(),
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	c.Override.init()

	for _, option := range options {
		option(&c)
	}

	c.boot = c.now()
	return &c
}

// Boot captures the ground-reference altitude. A failure leaves the machine
// reporting absolute altitude; the returned fault is not fatal.
func (c *Computer) Boot(context.Context) error {
	baro, err := c.sensors.Barometer.ReadBarometer()
	if err != nil {
		err = fault.New(fault.Sensor, "baseline", err)
		c.logger.Error("baseline capture failed, reporting absolute altitude", slog.String("error", err.Error()))
		return err
	}
	return c.machine.Calibrate(baro.Pressure)
}

// Phase returns the current flight phase. It must only be called from the
// goroutine running the transmit task or after it stopped.
func (c *Computer) Phase() flight.Phase {
	return c.machine.Phase()
}

// Cycle runs one transmit cycle: sample, advance the machine, encode and send
func (c *Computer) Cycle(ctx context.Context) (flight.Step, error) {
	ts := uint64(c.now().Sub(c.boot).Milliseconds())

	frame, faults := c.sensors.Frame(ts, c.machine.RelativeAltitude)
	for _, err := range faults {
		c.logger.Warn("sensor fault", slog.String("error", err.Error()))
	}

	step := c.machine.Update(frame, c.Override.Take())

	var aux string
	if c.aux != nil {
		aux = c.aux.Status.String()
	}

	line, n, err := telemetry.Encode(telemetry.FromFlight(frame, c.machine.State(), aux), c.cfg.PayloadLimit)
	if err != nil {
		return step, fmt.Errorf("encoding telemetry: %w", err)
	}
	if n < telemetry.FrameFields {
		c.logger.Debug("telemetry truncated", slog.Int("fields", n), slog.Int("size", len(line)))
	}

	if err = c.arbiter.Transmit(ctx, line); err != nil {
		return step, fault.New(fault.Link, "transmit telemetry", err)
	}
	return step, nil
}

// RunTransmit runs a cycle every TransmitInterval until ctx is done
func (c *Computer) RunTransmit(ctx context.Context) error {
	logger := c.logger.With(slog.String("task", "transmit"))

	ticker := time.NewTicker(c.cfg.TransmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := c.Cycle(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("telemetry cycle failed", slog.String("error", err.Error()))
		}
	}
}

// RunReceive listens for a command every ReceiveInterval until ctx is done
func (c *Computer) RunReceive(ctx context.Context) error {
	logger := c.logger.With(slog.String("task", "receive"))

	ticker := time.NewTicker(c.cfg.ReceiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		p, err := c.arbiter.Poll(ctx, c.cfg.ReceiveTimeout)
		switch {
		case err == nil:
			c.handle(logger, p)

		case errors.Is(err, radio.ErrNoData), errors.Is(err, radio.ErrYield):

		case ctx.Err() != nil:
			return nil

		default:
			logger.Warn("receive failed", slog.String("error", fault.New(fault.Link, "receive", err).Error()))
		}
	}
}

func (c *Computer) handle(logger *slog.Logger, p []byte) {
	cmd, err := telemetry.ParseCommand(p)
	if err != nil {
		logger.Warn("discarding command", slog.String("error", err.Error()))
		return
	}

	logger.Info("command received", slog.String("command", cmd.Kind.String()))

	var req auxlink.Request
	switch cmd.Kind {
	case telemetry.CommandStateOverride:
		c.Override.Set(cmd.Phase)
		return
	case telemetry.CommandImageSave:
		req = auxlink.RequestSave
	case telemetry.CommandImageTransmit:
		req = auxlink.RequestTransmit
	case telemetry.CommandImageShutdown:
		req = auxlink.RequestShutdown
	}

	if c.aux == nil {
		logger.Warn("no auxiliary computer, ignoring image command", slog.String("command", cmd.Kind.String()))
		return
	}
	c.aux.Requests.Set(req)
}

// Run boots the computer and runs the transmit, receive and auxiliary tasks
// until ctx is done
func (c *Computer) Run(ctx context.Context) error {
	if err := c.Boot(ctx); err != nil {
		// altitude stays absolute for the rest of the flight
		c.logger.Warn("continuing without a ground baseline")
	}

	tasks := []func(context.Context) error{c.RunTransmit, c.RunReceive}
	if c.aux != nil {
		tasks = append(tasks, c.aux.Run)
	}

	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = task(ctx)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Halt blocks until ctx is done after an unrecoverable init fault. The flight
// computer is not allowed to fly without its radio.
func Halt(ctx context.Context, logger *slog.Logger, err error) error {
	logger.Error("fatal init fault, halting", slog.String("error", err.Error()))
	<-ctx.Done()
	return err
}
