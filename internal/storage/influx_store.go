package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

const (
	measurementTelemetry = "telemetry"
	measurementCommand   = "command"
)

// InfluxConfig points an InfluxStore at an InfluxDB v2 bucket
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

func (c InfluxConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch {
	case c.URL == "":
		return fmt.Errorf("influx: url is required")
	case c.Org == "":
		return fmt.Errorf("influx: org is required")
	case c.Bucket == "":
		return fmt.Errorf("influx: bucket is required")
	}
	return nil
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxStore exports decoded telemetry as time-series points. Lines that
// did not decode carry no fields and are not exported.
type InfluxStore struct {
	client influxdb2.Client
	writer pointWriter

	closeOnce sync.Once
}

var _ Recorder = (*InfluxStore)(nil)

// NewInfluxStore creates a store writing synchronously to cfg.Bucket
func NewInfluxStore(cfg InfluxConfig) *InfluxStore {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxStore{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

func (s *InfluxStore) StoreTelemetry(ctx context.Context, sessionID int64, receivedAt time.Time, _ []byte, t *telemetry.Telemetry) error {
	p := telemetryPoint(sessionID, receivedAt, t)
	if p == nil {
		return nil
	}
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("writing telemetry point: %w", err)
	}
	return nil
}

func (s *InfluxStore) StoreCommand(ctx context.Context, sessionID int64, sentAt time.Time, raw []byte) error {
	p := influxdb2.NewPoint(
		measurementCommand,
		map[string]string{"session": strconv.FormatInt(sessionID, 10)},
		map[string]any{"raw": string(raw)},
		sentAt,
	)
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("writing command point: %w", err)
	}
	return nil
}

func (s *InfluxStore) Close() error {
	s.closeOnce.Do(func() {
		if s.client != nil {
			s.client.Close()
		}
	})
	return nil
}

func telemetryPoint(sessionID int64, receivedAt time.Time, t *telemetry.Telemetry) *write.Point {
	if t == nil {
		return nil
	}

	tags := map[string]string{"session": strconv.FormatInt(sessionID, 10)}
	if t.Phase != nil {
		tags["phase"] = t.Phase.String()
	}

	fields := map[string]any{"timestamp_ms": t.Timestamp}
	setFloat := func(key string, v *float64) {
		if v != nil {
			fields[key] = *v
		}
	}
	setFloat("pressure", t.Pressure)
	setFloat("temperature", t.Temperature)
	setFloat("pitch", t.Pitch)
	setFloat("yaw", t.Yaw)
	setFloat("altitude", t.Altitude)
	setFloat("range", t.Range)
	if t.Accel != nil {
		fields["accel_x"], fields["accel_y"], fields["accel_z"] = t.Accel[0], t.Accel[1], t.Accel[2]
	}
	if t.Gyro != nil {
		fields["gyro_x"], fields["gyro_y"], fields["gyro_z"] = t.Gyro[0], t.Gyro[1], t.Gyro[2]
	}
	if t.ChuteDeployed != nil {
		fields["chute"] = *t.ChuteDeployed
	}
	if t.Aux != nil {
		fields["aux"] = *t.Aux
	}

	return influxdb2.NewPoint(measurementTelemetry, tags, fields, receivedAt)
}
