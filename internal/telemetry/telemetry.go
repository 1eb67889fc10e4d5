// Package telemetry implements the ASCII wire protocol spoken over the radio
// link: the downlink telemetry frame and the uplink command frames.
package telemetry

import (
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
)

const (
	// MaxPayload is the largest payload accepted by the radio module
	MaxPayload = 240
)

// Telemetry is one downlink frame. Nil fields are absent, either because the
// sensor failed or because the frame was truncated before them.
type Telemetry struct {
	Timestamp     uint64        `json:"timestamp"`               // Milliseconds since boot of the flight computer
	Pressure      *float64      `json:"pressure,omitempty"`      // Static pressure in Pa
	Temperature   *float64      `json:"temperature,omitempty"`   // Temperature in °C
	Accel         *[3]float64   `json:"accel,omitempty"`         // Acceleration in g
	Gyro          *[3]float64   `json:"gyro,omitempty"`          // Angular rate in deg/s
	Pitch         *float64      `json:"pitch,omitempty"`         // Pitch angle in degrees
	Yaw           *float64      `json:"yaw,omitempty"`           // Yaw angle in degrees
	Altitude      *float64      `json:"altitude,omitempty"`      // Altitude above the launch site in meters
	Range         *float64      `json:"range,omitempty"`         // Time-of-flight distance in meters
	Phase         *flight.Phase `json:"phase,omitempty"`         // Flight phase ordinal
	ChuteDeployed *bool         `json:"chuteDeployed,omitempty"` // Parachute confirmed
	Aux           *string       `json:"aux,omitempty"`           // Auxiliary computer status
}

// FromFlight builds a frame from a sensor frame and the flight state that
// resulted from it.
func FromFlight(frame flight.SensorFrame, state flight.State, aux string) *Telemetry {
	t := Telemetry{
		Timestamp:     frame.Timestamp,
		Phase:         &state.Phase,
		ChuteDeployed: &state.ChuteDeployed,
		Aux:           &aux,
	}

	if frame.BaroValid {
		t.Pressure = &frame.Pressure
		t.Temperature = &frame.Temperature
		t.Altitude = &frame.Altitude
	}

	if frame.InertialValid {
		pitch, yaw := flight.Attitude(frame.Accel)
		t.Accel = &[3]float64{frame.Accel.X, frame.Accel.Y, frame.Accel.Z}
		t.Gyro = &[3]float64{frame.Gyro.X, frame.Gyro.Y, frame.Gyro.Z}
		t.Pitch = &pitch
		t.Yaw = &yaw
	}

	if frame.RangeValid {
		t.Range = &frame.Range
	}

	return &t
}
