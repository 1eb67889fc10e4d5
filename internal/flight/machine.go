// Package flight implements the flight-phase state machine. A Machine owns
// the complete flight state and is advanced one sensor frame at a time from
// a single goroutine.
package flight

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
)

const (
	// StandardGravity is subtracted from the acceleration magnitude so that
	// a vehicle at rest reads zero.
	StandardGravity = 1.0
)

// Signal is a discrete output line, such as the parachute actuator or the
// motor burnout indicator.
type Signal interface {
	Assert() error
	Release() error
}

// Thresholds are the guards of the automatic transitions
type Thresholds struct {
	LaunchAccel     float64       `yaml:"launchAccel"`     // Gravity-corrected g
	DeployCeiling   float64       `yaml:"deployCeiling"`   // Meters
	LandedCeiling   float64       `yaml:"landedCeiling"`   // Meters
	ChuteDelta      float64       `yaml:"chuteDelta"`      // m/s decrease of fall rate
	CycleInterval   time.Duration `yaml:"-"`               // Interval of the velocity finite difference, set from the transmit cadence
	ActuationSettle time.Duration `yaml:"actuationSettle"` // Time the actuator is held asserted
}

// DefaultThresholds returns the thresholds used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		LaunchAccel:     1.5,
		DeployCeiling:   600,
		LandedCeiling:   20,
		ChuteDelta:      5,
		CycleInterval:   time.Second,
		ActuationSettle: time.Second,
	}
}

// Validate checks that the thresholds are usable
func (t Thresholds) Validate() error {
	switch {
	case t.LaunchAccel <= 0:
		return fmt.Errorf("launchAccel must be positive")
	case t.DeployCeiling <= t.LandedCeiling:
		return fmt.Errorf("deployCeiling must be above landedCeiling")
	case t.CycleInterval <= 0:
		return fmt.Errorf("cycleInterval must be positive")
	case t.ActuationSettle < 0:
		return fmt.Errorf("actuationSettle must not be negative")
	}
	return nil
}

// State is the complete flight state
type State struct {
	Phase Phase

	Baseline      float64 // Ground-reference altitude captured at boot
	BaselineValid bool

	PrevAltitude      float64
	PrevAltitudeValid bool

	ChuteDeployed       bool    // Latched once the fall rate drop confirms the canopy
	InitialFallVelocity float64 // m/s, latched at deployment
	Actuations          int
	BurnoutSignalled    bool
}

// Step describes the outcome of a single Update
type Step struct {
	Previous   Phase
	Phase      Phase
	Changed    bool
	Overridden bool
	Actuated   bool
}

// WithLogger sets the logger of the machine
func WithLogger(logger *slog.Logger) func(*Machine) {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithThresholds replaces the default transition thresholds
func WithThresholds(t Thresholds) func(*Machine) {
	return func(m *Machine) {
		m.thresholds = t
	}
}

// WithSleep replaces the function used to hold the actuator asserted
func WithSleep(sleep func(time.Duration)) func(*Machine) {
	return func(m *Machine) {
		m.sleep = sleep
	}
}

// Machine is the flight-phase state machine. It is not safe for concurrent
// use; overrides coming from other goroutines must be handed to the goroutine
// calling Update.
type Machine struct {
	state      State
	thresholds Thresholds

	chute   Signal
	burnout Signal
	sleep   func(time.Duration)

	logger *slog.Logger
}

// NewMachine creates a machine in the Ground phase driving the given
// parachute and burnout outputs.
func NewMachine(chute, burnout Signal, options ...func(*Machine)) *Machine {
	m := Machine{
		thresholds: DefaultThresholds(),
		chute:      chute,
		burnout:    burnout,
		sleep:      time.Sleep,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// State returns a copy of the current flight state
func (m *Machine) State() State {
	return m.state
}

// Phase returns the current flight phase
func (m *Machine) Phase() Phase {
	return m.state.Phase
}

// Calibrate captures the ground-reference altitude from a boot-time pressure
// reading. An implausible reading leaves the baseline at zero.
func (m *Machine) Calibrate(pressure float64) error {
	if !PlausiblePressure(pressure) {
		m.state.Baseline = 0
		m.state.BaselineValid = false

		err := fault.New(fault.Sensor, "baseline", fmt.Errorf("implausible pressure %.0f Pa", pressure))
		m.logger.Error("baseline capture failed, reporting absolute altitude", slog.String("error", err.Error()))
		return err
	}

	m.state.Baseline = AltitudeFromPressure(pressure)
	m.state.BaselineValid = true

	m.logger.Info("baseline captured",
		slog.Float64("pressure", pressure),
		slog.Float64("baseline", m.state.Baseline))
	return nil
}

// RelativeAltitude converts a pressure reading to an altitude above the baseline
func (m *Machine) RelativeAltitude(pressure float64) float64 {
	return AltitudeFromPressure(pressure) - m.state.Baseline
}

// Update advances the machine by one sensor frame. A non-nil override sets
// the phase directly and bypasses every guard.
func (m *Machine) Update(frame SensorFrame, override *Phase) Step {
	step := Step{Previous: m.state.Phase, Phase: m.state.Phase}

	defer m.observe(frame)

	if override != nil {
		m.state.Phase = *override

		step.Phase = *override
		step.Changed = step.Previous != step.Phase
		step.Overridden = true

		m.logger.Warn("phase override",
			slog.String("from", step.Previous.String()),
			slog.String("to", step.Phase.String()))
		return step
	}

	t := m.thresholds
	trend := m.trend(frame)
	accel := m.correctedAccel(frame)

	next := m.state.Phase
	switch m.state.Phase {
	case Ground:
		if accel > t.LaunchAccel && trend > 0 {
			next = Launch
		}

	case Launch:
		if accel < t.LaunchAccel && trend > 0 {
			next = Coast
			m.signalBurnout()
		}

	case Coast:
		if !frame.RangeValid {
			next = Deploy
		}

	case Deploy:
		if trend < 0 && frame.Altitude < t.DeployCeiling {
			m.state.InitialFallVelocity = m.fallVelocity(frame)
			next = Parachute
			step.Actuated = m.actuate()
		}

	case Parachute:
		if !m.state.ChuteDeployed && trend != 0 {
			if m.state.InitialFallVelocity-m.fallVelocity(frame) > t.ChuteDelta {
				m.state.ChuteDeployed = true
				m.logger.Info("parachute confirmed", slog.Float64("fallVelocity", m.fallVelocity(frame)))
			}
		}
		if frame.BaroValid && frame.Altitude < t.LandedCeiling {
			next = Landed
		}
	}

	if next != m.state.Phase {
		m.state.Phase = next
		step.Phase = next
		step.Changed = true

		m.logger.Info("phase transition",
			slog.String("from", step.Previous.String()),
			slog.String("to", next.String()),
			slog.Float64("altitude", frame.Altitude),
			slog.Float64("accel", accel))
	}

	return step
}

// observe records what the next cycle compares against
func (m *Machine) observe(frame SensorFrame) {
	if frame.BaroValid {
		m.state.PrevAltitude = frame.Altitude
		m.state.PrevAltitudeValid = true
	}
}

// trend returns 1 when altitude rose since the previous cycle, -1 when it
// fell and 0 when it is unchanged or unknown.
func (m *Machine) trend(frame SensorFrame) int {
	if !frame.BaroValid || !m.state.PrevAltitudeValid {
		return 0
	}
	switch {
	case frame.Altitude > m.state.PrevAltitude:
		return 1
	case frame.Altitude < m.state.PrevAltitude:
		return -1
	}
	return 0
}

// correctedAccel is the acceleration magnitude less gravity. A stale
// inertial read counts as no motion.
func (m *Machine) correctedAccel(frame SensorFrame) float64 {
	if !frame.InertialValid {
		return 0
	}
	a := frame.Accel.Magnitude() - StandardGravity
	if a < 0 {
		return -a
	}
	return a
}

// fallVelocity is positive while descending
func (m *Machine) fallVelocity(frame SensorFrame) float64 {
	return (m.state.PrevAltitude - frame.Altitude) / m.thresholds.CycleInterval.Seconds()
}

func (m *Machine) signalBurnout() {
	if m.state.BurnoutSignalled || m.burnout == nil {
		return
	}
	if err := m.burnout.Assert(); err != nil {
		m.logger.Error("asserting burnout signal", slog.String("error", err.Error()))
		return
	}
	m.state.BurnoutSignalled = true
}

// actuate runs the parachute sequence: assert, hold, release. It fires at
// most once per flight and blocks its caller for the settle duration.
func (m *Machine) actuate() bool {
	if m.state.Actuations > 0 || m.chute == nil {
		return false
	}
	m.state.Actuations++

	m.logger.Warn("deploying parachute", slog.Float64("fallVelocity", m.state.InitialFallVelocity))

	if err := m.chute.Assert(); err != nil {
		m.logger.Error("asserting parachute actuator", slog.String("error", err.Error()))
	}

	m.sleep(m.thresholds.ActuationSettle)

	if err := m.chute.Release(); err != nil {
		m.logger.Error("releasing parachute actuator", slog.String("error", err.Error()))
	}

	return true
}
