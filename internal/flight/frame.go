package flight

import "math"

// Vector is a three-axis sensor reading
type Vector struct {
	X, Y, Z float64
}

// Magnitude returns the euclidean norm of v
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// SensorFrame is one cycle's worth of sensor input. It is built fresh for
// every cycle and never retained past it.
type SensorFrame struct {
	Timestamp uint64 // Monotonic milliseconds since boot

	Accel         Vector // Acceleration in g
	Gyro          Vector // Angular rate in deg/s
	InertialValid bool

	Altitude    float64 // Meters, relative to the boot baseline
	Pressure    float64 // Pa
	Temperature float64 // °C
	BaroValid   bool

	Range      float64 // Time-of-flight distance in meters
	RangeValid bool
}

// Attitude derives pitch and yaw, in degrees, from the gravity vector seen
// by the accelerometer.
func Attitude(accel Vector) (pitch, yaw float64) {
	pitch = math.Atan2(accel.Y, math.Sqrt(accel.X*accel.X+accel.Z*accel.Z)) * 180 / math.Pi
	yaw = math.Atan2(-accel.X, math.Sqrt(accel.Y*accel.Y+accel.Z*accel.Z)) * 180 / math.Pi
	return
}
