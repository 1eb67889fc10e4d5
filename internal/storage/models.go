package storage

import (
	"database/sql"
	"time"
)

type telemetryData struct {
	ID          int64
	SessionID   int64
	ReceivedAt  time.Time
	Raw         string
	Decoded     bool
	TimestampMS sql.NullInt64
	Pressure    sql.NullFloat64
	Temperature sql.NullFloat64
	AccelX      sql.NullFloat64
	AccelY      sql.NullFloat64
	AccelZ      sql.NullFloat64
	GyroX       sql.NullFloat64
	GyroY       sql.NullFloat64
	GyroZ       sql.NullFloat64
	Pitch       sql.NullFloat64
	Yaw         sql.NullFloat64
	Altitude    sql.NullFloat64
	Distance    sql.NullFloat64
	Phase       sql.NullInt64
	Chute       sql.NullBool
	Aux         sql.NullString
}

// values returns the columns in insertTelemetrySQL order, id excluded
func (d *telemetryData) values() []any {
	return []any{
		d.SessionID,
		d.ReceivedAt,
		d.Raw,
		d.Decoded,
		d.TimestampMS,
		d.Pressure,
		d.Temperature,
		d.AccelX,
		d.AccelY,
		d.AccelZ,
		d.GyroX,
		d.GyroY,
		d.GyroZ,
		d.Pitch,
		d.Yaw,
		d.Altitude,
		d.Distance,
		d.Phase,
		d.Chute,
		d.Aux,
	}
}

// dest returns scan destinations in selectTelemetrySQL order
func (d *telemetryData) dest() []any {
	return []any{
		&d.ID,
		&d.ReceivedAt,
		&d.Raw,
		&d.Decoded,
		&d.TimestampMS,
		&d.Pressure,
		&d.Temperature,
		&d.AccelX,
		&d.AccelY,
		&d.AccelZ,
		&d.GyroX,
		&d.GyroY,
		&d.GyroZ,
		&d.Pitch,
		&d.Yaw,
		&d.Altitude,
		&d.Distance,
		&d.Phase,
		&d.Chute,
		&d.Aux,
	}
}
