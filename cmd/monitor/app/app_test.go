package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/server"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

func float(v float64) *float64 {
	return &v
}

func sampleResponse(receivedAt time.Time) *server.TelemetryResponse {
	phase := flight.Coast
	chute := false
	aux := "IDLE"
	return &server.TelemetryResponse{
		ReceivedAt: &receivedAt,
		Raw:        "DWL:1500:ALT:120.50:STATE:2EOT",
		Telemetry: &telemetry.Telemetry{
			Timestamp:     1500,
			Altitude:      float(120.5),
			Phase:         &phase,
			ChuteDeployed: &chute,
			Aux:           &aux,
		},
		Queues: map[string]server.QueueStats{
			"telemetry": {Len: 2, Cap: 10},
			"commands":  {Len: 0, Cap: 10, Dropped: 3},
		},
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("ftp://ground", nil)
	assert.Error(t, err)

	_, err = NewClient("http://", nil)
	assert.Error(t, err)

	c, err := NewClient("http://ground:80/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://ground:80", c.baseURL)
}

func TestClientTelemetry(t *testing.T) {
	receivedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/telemetry", r.URL.Path)
		_ = json.NewEncoder(w).Encode(sampleResponse(receivedAt))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	resp, err := c.Telemetry(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp.Telemetry)
	assert.True(t, receivedAt.Equal(*resp.ReceivedAt))
	assert.Equal(t, flight.Coast, *resp.Telemetry.Phase)
	assert.InDelta(t, 120.5, *resp.Telemetry.Altitude, 1e-9)
	assert.Equal(t, uint64(3), resp.Queues["commands"].Dropped)
}

func TestClientTelemetryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.Telemetry(context.Background())
	assert.ErrorContains(t, err, "500")
}

func TestClientSend(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []string
		full bool
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/instruction", r.URL.Path)
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(body))
		if full {
			http.Error(w, "command queue full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "ACK")
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), telemetry.StateOverride(flight.Deploy)))
	require.NoError(t, c.Send(context.Background(), telemetry.Command{Kind: telemetry.CommandImageTransmit}))

	mu.Lock()
	full = true
	mu.Unlock()
	err = c.Send(context.Background(), telemetry.Command{Kind: telemetry.CommandImageSave})
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "command queue full")

	err = c.Send(context.Background(), telemetry.Command{})
	assert.ErrorIs(t, err, telemetry.ErrUnknownCommand)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"CMD:STATE:3", "CMD:TIMAGE:", "CMD:IMAGE:"}, got)
}

func TestCommandKeys(t *testing.T) {
	keys := commandKeys()
	assert.Len(t, keys, 9)

	for key, want := range map[rune]string{
		'0': "CMD:STATE:0",
		'5': "CMD:STATE:5",
		'i': "CMD:IMAGE:",
		't': "CMD:TIMAGE:",
		'x': "CMD:SIMAGE:",
	} {
		cmd, ok := keys[key]
		require.True(t, ok, "key %q", key)
		assert.Equal(t, want, string(cmd.Marshal()), "key %q", key)
	}
}

func TestDashboardStale(t *testing.T) {
	var d Dashboard
	now := time.Now()
	assert.True(t, d.Stale(now), "nothing received yet")

	d.Update(sampleResponse(now.Add(-time.Second)), nil, now)
	assert.False(t, d.Stale(now))
	assert.True(t, d.Stale(now.Add(StaleAfter)))

	// a failed poll keeps the last frame
	d.Update(nil, assert.AnError, now)
	assert.False(t, d.Stale(now))
}

func TestDashboardRender(t *testing.T) {
	var d Dashboard
	now := time.Now()

	var buf bytes.Buffer
	d.RenderInfo(&buf, now)
	assert.Contains(t, buf.String(), "No data received")

	d.Update(sampleResponse(now.Add(-10*time.Second)), nil, now)

	buf.Reset()
	d.RenderInfo(&buf, now)
	out := buf.String()
	assert.Contains(t, out, "STALE")
	assert.Contains(t, out, "COAST")
	assert.Contains(t, out, "alt: 120.50 m range: - m")
	assert.Contains(t, out, "time: 1.5s")
	assert.Contains(t, out, "aux: IDLE")

	buf.Reset()
	d.RenderQueues(&buf)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "commands")
	assert.Contains(t, lines[0], "dropped: 3")
	assert.Contains(t, lines[1], "telemetry")
}

func TestDashboardRenderPollError(t *testing.T) {
	var d Dashboard
	d.Update(nil, assert.AnError, time.Now())

	var buf bytes.Buffer
	d.RenderInfo(&buf, time.Now())
	assert.Contains(t, buf.String(), "ground station unreachable")
}

func TestLogBuffer(t *testing.T) {
	l := NewLogBuffer(3)

	changes := 0
	l.OnChange(func() { changes++ })

	_, err := io.WriteString(l, "one\ntwo\n")
	require.NoError(t, err)
	l.AddLine("three")
	l.AddLine("four")

	assert.Equal(t, 4, changes)
	assert.Equal(t, []string{"two", "three", "four"}, l.Lines(10))
	assert.Equal(t, []string{"four"}, l.Lines(1))
	assert.Empty(t, l.Lines(0))
}

func TestPollOnceLogsStaleTransitions(t *testing.T) {
	receivedAt := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(sampleResponse(receivedAt))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	logs := NewLogBuffer(10)
	app := App{
		ctx:    context.Background(),
		client: c,
		logs:   logs,
		logger: slog.New(slog.NewTextHandler(logs, nil)),
	}

	app.pollOnce(context.Background())
	assert.False(t, app.dashboard.Stale(time.Now()))

	lines := logs.Lines(10)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "telemetry resumed")
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{URL: "http://ground", PollInterval: DefaultPollInterval}.Validate())
	assert.Error(t, Config{PollInterval: DefaultPollInterval}.Validate())
	assert.Error(t, Config{URL: "http://ground"}.Validate())
}
