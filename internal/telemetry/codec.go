package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
)

const (
	TagDownlink    = "DWL"
	TagPressure    = "PRES"
	TagTemperature = "TEMP"
	TagAccel       = "ACC"
	TagGyro        = "GY"
	TagPitch       = "PITCH"
	TagYaw         = "YAW"
	TagAltitude    = "ALT"
	TagRange       = "TOF"
	TagState       = "STATE"
	TagChute       = "CHUTE"
	TagAux         = "DUO"

	// FrameFields is the number of fields of a complete downlink frame
	FrameFields = 12
)

var (
	// ErrFrameTooSmall is returned when not even the leading field fits the limit
	ErrFrameTooSmall = errors.New("frame limit too small")

	// ErrCorrupt is returned for a frame without the end marker or the leading fields
	ErrCorrupt = errors.New("corrupt frame")
)

// Encode renders t as a wire frame of at most limit bytes. Fields that do not
// fit are dropped from the end; the number of fields emitted is returned.
func Encode(t *Telemetry, limit int) ([]byte, int, error) {
	b := NewBuilder(limit)

	if !b.Field(TagDownlink, strconv.FormatUint(t.Timestamp, 10)) {
		return nil, 0, fmt.Errorf("encoding telemetry: %w", ErrFrameTooSmall)
	}

	fields := []struct {
		tag   string
		value string
	}{
		{TagPressure, formatFloat(t.Pressure)},
		{TagTemperature, formatFloat(t.Temperature)},
		{TagAccel, formatTriple(t.Accel)},
		{TagGyro, formatTriple(t.Gyro)},
		{TagPitch, formatFloat(t.Pitch)},
		{TagYaw, formatFloat(t.Yaw)},
		{TagAltitude, formatFloat(t.Altitude)},
		{TagRange, formatFloat(t.Range)},
		{TagState, formatPhase(t.Phase)},
		{TagChute, formatBool(t.ChuteDeployed)},
		{TagAux, formatAux(t.Aux)},
	}
	for _, f := range fields {
		if !b.Field(f.tag, f.value) {
			break
		}
	}

	return b.Bytes(), b.Fields(), nil
}

// Decode parses a wire frame. The end marker, the downlink tag and the
// timestamp are mandatory; any other field that is unknown or malformed is
// left absent.
func Decode(line []byte) (*Telemetry, error) {
	s := strings.TrimRight(string(line), "\x00\r\n ")

	body, ok := strings.CutSuffix(s, endMarker)
	if !ok {
		return nil, corrupt("missing end marker")
	}

	parts := strings.Split(body, string(separator))
	if len(parts) < 2 || parts[0] != TagDownlink {
		return nil, corrupt("missing downlink tag")
	}

	ts, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, corrupt("invalid timestamp")
	}

	t := Telemetry{Timestamp: ts}
	for i := 2; i+1 < len(parts); i += 2 {
		value := parts[i+1]

		switch parts[i] {
		case TagPressure:
			t.Pressure = parseFloat(value)
		case TagTemperature:
			t.Temperature = parseFloat(value)
		case TagAccel:
			t.Accel = parseTriple(value)
		case TagGyro:
			t.Gyro = parseTriple(value)
		case TagPitch:
			t.Pitch = parseFloat(value)
		case TagYaw:
			t.Yaw = parseFloat(value)
		case TagAltitude:
			t.Altitude = parseFloat(value)
		case TagRange:
			t.Range = parseFloat(value)
		case TagState:
			t.Phase = parsePhase(value)
		case TagChute:
			t.ChuteDeployed = parseBool(value)
		case TagAux:
			if value != "" {
				t.Aux = &value
			}
		}
	}

	return &t, nil
}

func corrupt(reason string) error {
	return fault.New(fault.Protocol, "decode telemetry", fmt.Errorf("%w: %s", ErrCorrupt, reason))
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatTriple(v *[3]float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(&v[0]) + "," + formatFloat(&v[1]) + "," + formatFloat(&v[2])
}

func formatPhase(p *flight.Phase) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(int(*p))
}

func formatBool(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "1"
	default:
		return "0"
	}
}

func formatAux(v *string) string {
	if v == nil {
		return ""
	}
	return strings.ReplaceAll(*v, string(separator), "")
}

func parseFloat(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseTriple(s string) *[3]float64 {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil
	}

	var v [3]float64
	for i, p := range parts {
		f := parseFloat(p)
		if f == nil {
			return nil
		}
		v[i] = *f
	}
	return &v
}

func parsePhase(s string) *flight.Phase {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	p, ok := flight.PhaseFromOrdinal(n)
	if !ok {
		return nil
	}
	return &p
}

func parseBool(s string) *bool {
	var v bool
	switch s {
	case "1":
		v = true
	case "0":
	default:
		return nil
	}
	return &v
}
