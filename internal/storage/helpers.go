package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toTelemetryData(sessionID int64, receivedAt time.Time, raw []byte, t *telemetry.Telemetry) *telemetryData {
	d := telemetryData{
		SessionID:  sessionID,
		ReceivedAt: receivedAt.UTC(),
		Raw:        string(raw),
		Decoded:    t != nil,
	}
	if t == nil {
		return &d
	}

	d.TimestampMS = sql.NullInt64{Int64: int64(t.Timestamp), Valid: true}
	d.Pressure = toNullFloat(t.Pressure)
	d.Temperature = toNullFloat(t.Temperature)
	if t.Accel != nil {
		d.AccelX = sql.NullFloat64{Float64: t.Accel[0], Valid: true}
		d.AccelY = sql.NullFloat64{Float64: t.Accel[1], Valid: true}
		d.AccelZ = sql.NullFloat64{Float64: t.Accel[2], Valid: true}
	}
	if t.Gyro != nil {
		d.GyroX = sql.NullFloat64{Float64: t.Gyro[0], Valid: true}
		d.GyroY = sql.NullFloat64{Float64: t.Gyro[1], Valid: true}
		d.GyroZ = sql.NullFloat64{Float64: t.Gyro[2], Valid: true}
	}
	d.Pitch = toNullFloat(t.Pitch)
	d.Yaw = toNullFloat(t.Yaw)
	d.Altitude = toNullFloat(t.Altitude)
	d.Distance = toNullFloat(t.Range)
	if t.Phase != nil {
		d.Phase = sql.NullInt64{Int64: int64(*t.Phase), Valid: true}
	}
	if t.ChuteDeployed != nil {
		d.Chute = sql.NullBool{Bool: *t.ChuteDeployed, Valid: true}
	}
	if t.Aux != nil {
		d.Aux = sql.NullString{String: *t.Aux, Valid: true}
	}

	return &d
}

func fromTelemetryData(d *telemetryData) *Record {
	r := Record{
		ID:         d.ID,
		ReceivedAt: d.ReceivedAt,
		Raw:        d.Raw,
	}
	if !d.Decoded {
		return &r
	}

	t := telemetry.Telemetry{
		Timestamp:   uint64(d.TimestampMS.Int64),
		Pressure:    fromNullFloat(d.Pressure),
		Temperature: fromNullFloat(d.Temperature),
		Pitch:       fromNullFloat(d.Pitch),
		Yaw:         fromNullFloat(d.Yaw),
		Altitude:    fromNullFloat(d.Altitude),
		Range:       fromNullFloat(d.Distance),
	}
	if d.AccelX.Valid && d.AccelY.Valid && d.AccelZ.Valid {
		t.Accel = &[3]float64{d.AccelX.Float64, d.AccelY.Float64, d.AccelZ.Float64}
	}
	if d.GyroX.Valid && d.GyroY.Valid && d.GyroZ.Valid {
		t.Gyro = &[3]float64{d.GyroX.Float64, d.GyroY.Float64, d.GyroZ.Float64}
	}
	if d.Phase.Valid {
		if p, ok := flight.PhaseFromOrdinal(int(d.Phase.Int64)); ok {
			t.Phase = &p
		}
	}
	if d.Chute.Valid {
		t.ChuteDeployed = &d.Chute.Bool
	}
	if d.Aux.Valid {
		t.Aux = &d.Aux.String
	}

	r.Frame = &t
	return &r
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
