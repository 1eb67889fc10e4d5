// Package sim provides a scripted bench flight that stands in for the
// airframe sensors. It is a kinematic profile, not a physical model.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/sensor"
)

const (
	gravity = 9.80665
	step    = 10 * time.Millisecond
)

// Profile describes the scripted flight
type Profile struct {
	GroundAltitude   float64       `yaml:"groundAltitude"`   // ISA altitude of the pad, m
	Temperature      float64       `yaml:"temperature"`      // °C
	LaunchDelay      time.Duration `yaml:"launchDelay"`      // Time on the pad before ignition
	BurnTime         time.Duration `yaml:"burnTime"`         // Motor burn duration
	BurnAccel        float64       `yaml:"burnAccel"`        // Proper acceleration while burning, g
	TerminalVelocity float64       `yaml:"terminalVelocity"` // Free-fall descent rate, m/s
	DescentRate      float64       `yaml:"descentRate"`      // Descent rate under canopy, m/s
	RangeLimit       float64       `yaml:"rangeLimit"`       // Maximum distance of the range sensor, m
}

// DefaultProfile is a small solid-motor flight peaking near 1 km
func DefaultProfile() Profile {
	return Profile{
		GroundAltitude:   100,
		Temperature:      18,
		LaunchDelay:      10 * time.Second,
		BurnTime:         2 * time.Second,
		BurnAccel:        8,
		TerminalVelocity: 60,
		DescentRate:      6,
		RangeLimit:       4,
	}
}

// WithClock replaces the clock returning the time elapsed since the start of the simulation
func WithClock(clock func() time.Duration) func(*Flight) {
	return func(f *Flight) {
		f.clock = clock
	}
}

// Flight implements sensor.Inertial, sensor.Barometer and sensor.Ranger from
// a Profile. It also implements flight.Signal: asserting it opens the canopy.
type Flight struct {
	mu      sync.Mutex
	profile Profile
	clock   func() time.Duration

	at       time.Duration
	height   float64
	velocity float64
	proper   float64 // accelerometer reading along the vertical axis, g
	canopy   bool
	landed   bool
}

// New creates a simulated flight which starts on the pad
func New(profile Profile, options ...func(*Flight)) *Flight {
	start := time.Now()

	f := Flight{
		profile: profile,
		clock:   func() time.Duration { return time.Since(start) },
		proper:  1,
	}

	for _, option := range options {
		option(&f)
	}

	return &f
}

// Assert opens the parachute
func (f *Flight) Assert() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.canopy = true
	return nil
}

// Release is a no-op, the canopy stays open
func (f *Flight) Release() error {
	return nil
}

// Height returns the simulated height above the pad
func (f *Flight) Height() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advance()
	return f.height
}

func (f *Flight) ReadInertial() (sensor.InertialSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advance()
	return sensor.InertialSample{Accel: flight.Vector{Z: f.proper}}, nil
}

func (f *Flight) ReadBarometer() (sensor.BarometerSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advance()
	return sensor.BarometerSample{
		Pressure:    flight.PressureAtAltitude(f.profile.GroundAltitude + f.height),
		Temperature: f.profile.Temperature - 0.0065*f.height,
	}, nil
}

func (f *Flight) ReadRange() (sensor.RangeSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advance()
	if f.height > f.profile.RangeLimit {
		return sensor.RangeSample{}, sensor.ErrOutOfRange
	}
	return sensor.RangeSample{Distance: f.height}, nil
}

// advance integrates the profile up to the current clock reading
func (f *Flight) advance() {
	now := f.clock()

	for f.at+step <= now {
		f.at += step
		f.integrate(step.Seconds())
	}
}

func (f *Flight) integrate(dt float64) {
	p := f.profile
	ignition := p.LaunchDelay
	burnout := p.LaunchDelay + p.BurnTime

	switch {
	case f.landed || f.at < ignition:
		f.proper = 1
		return

	case f.at < burnout:
		f.proper = p.BurnAccel
		f.velocity += (p.BurnAccel - 1) * gravity * dt

	case f.canopy && f.velocity < 0:
		// ease towards the descent rate, the canopy carries the weight
		f.velocity += (-p.DescentRate - f.velocity) * math.Min(1, 2*dt)
		f.proper = 1

	case f.velocity < 0 && -f.velocity >= p.TerminalVelocity:
		f.velocity = -p.TerminalVelocity
		f.proper = 1

	default:
		f.velocity -= gravity * dt
		f.proper = 0
	}

	f.height += f.velocity * dt

	if f.height <= 0 && f.at > burnout {
		f.height = 0
		f.velocity = 0
		f.proper = 1
		f.landed = true
	}
}
