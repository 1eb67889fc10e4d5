package flight

import "math"

const (
	// SeaLevelPressure is the ISA reference pressure in Pa
	SeaLevelPressure = 101325.0

	// MinPlausiblePressure and MaxPlausiblePressure bound a pressure reading
	// that can be trusted as the ground baseline.
	MinPlausiblePressure = 30000.0
	MaxPlausiblePressure = 110000.0
)

// AltitudeFromPressure converts a static pressure in Pa to an ISA altitude in meters
func AltitudeFromPressure(pa float64) float64 {
	return 44330 * (1 - math.Pow(pa/SeaLevelPressure, 0.1903))
}

// PressureAtAltitude is the inverse of AltitudeFromPressure
func PressureAtAltitude(m float64) float64 {
	return SeaLevelPressure * math.Pow(1-m/44330, 1/0.1903)
}

// PlausiblePressure reports whether pa could have come from a working barometer
func PlausiblePressure(pa float64) bool {
	return !math.IsNaN(pa) && pa >= MinPlausiblePressure && pa <= MaxPlausiblePressure
}
