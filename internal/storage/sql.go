package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_telemetry_session ON telemetry (session_id, received_at);
CREATE INDEX IF NOT EXISTS idx_commands_session ON commands (session_id, sent_at);`

	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      station,
                      radio,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    station,
    radio,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    station,
    radio,
    config
FROM sessions
ORDER BY start_time, id`

	insertTelemetrySQL = `
INSERT INTO telemetry (session_id,
                       received_at,
                       raw,
                       decoded,
                       timestamp_ms,
                       pressure,
                       temperature,
                       accel_x,
                       accel_y,
                       accel_z,
                       gyro_x,
                       gyro_y,
                       gyro_z,
                       pitch,
                       yaw,
                       altitude,
                       distance,
                       phase,
                       chute,
                       aux)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectTelemetrySQL = `
SELECT id,
       received_at,
       raw,
       decoded,
       timestamp_ms,
       pressure,
       temperature,
       accel_x,
       accel_y,
       accel_z,
       gyro_x,
       gyro_y,
       gyro_z,
       pitch,
       yaw,
       altitude,
       distance,
       phase,
       chute,
       aux
FROM telemetry
WHERE session_id = ?
  AND received_at >= ?
ORDER BY id
LIMIT ?`

	insertCommandSQL = `
INSERT INTO commands (session_id,
                      sent_at,
                      raw)
VALUES (?, ?, ?)`
)
