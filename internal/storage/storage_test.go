package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "flight.db"))
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func sampleTelemetry() *telemetry.Telemetry {
	phase := flight.Coast
	chute := false
	alt := 412.5
	pres := 96421.0
	aux := "IDLE"
	return &telemetry.Telemetry{
		Timestamp:     12000,
		Pressure:      &pres,
		Accel:         &[3]float64{0.1, -0.2, 1.05},
		Altitude:      &alt,
		Phase:         &phase,
		ChuteDeployed: &chute,
		Aux:           &aux,
	}
}

func TestSqliteStoreSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "ground", "rylr", map[string]int{"band": 909000000})
	require.NoError(t, err)

	second, err := s.CreateSession(ctx, "ground", "udp", nil)
	require.NoError(t, err)
	assert.Greater(t, second, id)

	sess, err := s.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ground", sess.Station)
	assert.Equal(t, "rylr", sess.Radio)
	require.NotNil(t, sess.Config)
	assert.JSONEq(t, `{"band":909000000}`, *sess.Config)
	assert.False(t, sess.StartTime.IsZero())

	all, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Nil(t, all[1].Config)

	_, err = s.Session(ctx, 999)
	assert.Error(t, err)
}

func TestSqliteStoreTelemetryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "ground", "udp", "raw config")
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	frame := sampleTelemetry()
	require.NoError(t, s.StoreTelemetry(ctx, id, base, []byte("DWL:12000:STATE:3EOT"), frame))
	require.NoError(t, s.StoreTelemetry(ctx, id, base.Add(time.Second), []byte("garbage"), nil))
	require.NoError(t, s.StoreTelemetry(ctx, id, base.Add(2*time.Second), []byte("DWL:13000EOT"), &telemetry.Telemetry{Timestamp: 13000}))

	records, err := s.ReadTelemetry(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "DWL:12000:STATE:3EOT", first.Raw)
	assert.True(t, base.Equal(first.ReceivedAt))
	require.NotNil(t, first.Frame)
	assert.Equal(t, uint64(12000), first.Frame.Timestamp)
	assert.Equal(t, flight.Coast, *first.Frame.Phase)
	assert.False(t, *first.Frame.ChuteDeployed)
	assert.Equal(t, [3]float64{0.1, -0.2, 1.05}, *first.Frame.Accel)
	assert.InDelta(t, 412.5, *first.Frame.Altitude, 1e-9)
	assert.Equal(t, "IDLE", *first.Frame.Aux)
	assert.Nil(t, first.Frame.Gyro)
	assert.Nil(t, first.Frame.Temperature)

	assert.Equal(t, "garbage", records[1].Raw)
	assert.Nil(t, records[1].Frame)

	records, err = s.ReadTelemetry(ctx, id, WithSince(base.Add(time.Second)), WithLimit(1))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "garbage", records[0].Raw)

	records, err = s.ReadTelemetry(ctx, id, WithLimit(0))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = s.ReadTelemetry(ctx, id+1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSqliteStoreCommands(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "ground", "udp", nil)
	require.NoError(t, err)
	assert.NoError(t, s.StoreCommand(ctx, id, time.Now(), []byte("CMD:STATE:2")))
}

func TestSqliteStoreCloseTwice(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "flight.db"))
	_, err := s.CreateSession(context.Background(), "ground", "udp", nil)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

type capturingWriter struct {
	points []*write.Point
	err    error
}

func (w *capturingWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	w.points = append(w.points, points...)
	return w.err
}

func pointTags(p *write.Point) map[string]string {
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	return tags
}

func pointFields(p *write.Point) map[string]any {
	fields := map[string]any{}
	for _, field := range p.FieldList() {
		fields[field.Key] = field.Value
	}
	return fields
}

func TestInfluxStoreTelemetryPoint(t *testing.T) {
	w := &capturingWriter{}
	s := &InfluxStore{writer: w}

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.StoreTelemetry(context.Background(), 7, at, nil, sampleTelemetry()))
	require.NoError(t, s.StoreTelemetry(context.Background(), 7, at, []byte("garbage"), nil))
	require.Len(t, w.points, 1)

	p := w.points[0]
	assert.Equal(t, "telemetry", p.Name())
	assert.True(t, at.Equal(p.Time()))
	assert.Equal(t, map[string]string{"session": "7", "phase": "COAST"}, pointTags(p))

	fields := pointFields(p)
	assert.Equal(t, 412.5, fields["altitude"])
	assert.Equal(t, 1.05, fields["accel_z"])
	assert.Equal(t, false, fields["chute"])
	assert.Equal(t, "IDLE", fields["aux"])
	assert.NotContains(t, fields, "gyro_x")
	assert.NotContains(t, fields, "temperature")

	assert.NoError(t, s.Close())
}

func TestInfluxConfigValidate(t *testing.T) {
	assert.NoError(t, InfluxConfig{}.Validate())
	assert.Error(t, InfluxConfig{Enabled: true}.Validate())
	assert.NoError(t, InfluxConfig{Enabled: true, URL: "http://localhost:8086", Org: "club", Bucket: "flight"}.Validate())
}

type recorderFunc func() error

func (f recorderFunc) StoreTelemetry(context.Context, int64, time.Time, []byte, *telemetry.Telemetry) error {
	return f()
}

func (f recorderFunc) StoreCommand(context.Context, int64, time.Time, []byte) error {
	return f()
}

func (f recorderFunc) Close() error {
	return f()
}

func TestMultiRecorderCallsEveryRecorder(t *testing.T) {
	boom := errors.New("boom")
	var calls int

	m := MultiRecorder{
		recorderFunc(func() error { calls++; return boom }),
		recorderFunc(func() error { calls++; return nil }),
	}

	err := m.StoreTelemetry(context.Background(), 1, time.Now(), nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)

	assert.ErrorIs(t, m.StoreCommand(context.Background(), 1, time.Now(), nil), boom)
	assert.ErrorIs(t, m.Close(), boom)
	assert.Equal(t, 6, calls)
}
