// Package sensor defines the contract of the airframe sensor drivers: every
// read either returns the latest sample or fails.
package sensor

import (
	"errors"
	"fmt"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
)

var (
	// ErrStale is returned when a driver has no fresh sample since the previous read
	ErrStale = errors.New("stale reading")

	// ErrOutOfRange is returned by a range sensor that has no target within
	// its measurable distance
	ErrOutOfRange = errors.New("out of range")
)

// InertialSample is an accelerometer and gyroscope reading
type InertialSample struct {
	Accel flight.Vector // g
	Gyro  flight.Vector // deg/s
}

// BarometerSample is a static pressure and temperature reading
type BarometerSample struct {
	Pressure    float64 // Pa
	Temperature float64 // °C
}

// RangeSample is a time-of-flight distance
type RangeSample struct {
	Distance float64 // m
}

type Inertial interface {
	ReadInertial() (InertialSample, error)
}

type Barometer interface {
	ReadBarometer() (BarometerSample, error)
}

type Ranger interface {
	ReadRange() (RangeSample, error)
}

// Suite is the set of sensors sampled on every cycle
type Suite struct {
	Inertial  Inertial
	Barometer Barometer
	Ranger    Ranger
}

// Frame samples every sensor once. Failed reads never abort the frame: the
// affected fields are left zero and flagged invalid, and the faults are
// returned alongside. altitude converts a pressure into the relative
// altitude reported in the frame.
func (s Suite) Frame(timestamp uint64, altitude func(pressure float64) float64) (flight.SensorFrame, []error) {
	frame := flight.SensorFrame{Timestamp: timestamp}
	var faults []error

	if imu, err := s.Inertial.ReadInertial(); err != nil {
		faults = append(faults, fault.New(fault.Sensor, "inertial", err))
	} else {
		frame.Accel = imu.Accel
		frame.Gyro = imu.Gyro
		frame.InertialValid = true
	}

	if baro, err := s.Barometer.ReadBarometer(); err != nil {
		faults = append(faults, fault.New(fault.Sensor, "barometer", err))
	} else if !flight.PlausiblePressure(baro.Pressure) {
		faults = append(faults, fault.New(fault.Sensor, "barometer", fmt.Errorf("implausible pressure %.0f Pa", baro.Pressure)))
	} else {
		frame.Pressure = baro.Pressure
		frame.Temperature = baro.Temperature
		frame.Altitude = altitude(baro.Pressure)
		frame.BaroValid = true
	}

	// out of range is a signal rather than a fault, both leave the reading invalid
	if r, err := s.Ranger.ReadRange(); err != nil {
		if !errors.Is(err, ErrOutOfRange) {
			faults = append(faults, fault.New(fault.Sensor, "range", err))
		}
	} else {
		frame.Range = r.Distance
		frame.RangeValid = true
	}

	return frame, faults
}
