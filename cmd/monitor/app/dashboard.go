package app

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/rocket-telemetry/internal/server"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

// StaleAfter is how long the dashboard waits for a new frame before warning
const StaleAfter = 5 * time.Second

const (
	fgRed    = 31
	fgGreen  = 32
	fgYellow = 33
	bold     = 1
)

func withColors(s string, attrs ...int) string {
	codes := make([]string, len(attrs))
	for i, a := range attrs {
		codes[i] = fmt.Sprint(a)
	}
	return "\x1b[" + strings.Join(codes, ";") + "m" + s + "\x1b[0m"
}

// Dashboard holds the last poll result. It is safe for concurrent use.
type Dashboard struct {
	mu      sync.RWMutex
	latest  *server.TelemetryResponse
	polled  time.Time
	pollErr error
}

// Update records the outcome of a poll made at now
func (d *Dashboard) Update(resp *server.TelemetryResponse, err error, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.polled = now
	d.pollErr = err
	if err == nil {
		d.latest = resp
	}
}

// Stale reports whether the most recent frame is older than StaleAfter, or
// nothing has been received yet.
func (d *Dashboard) Stale(now time.Time) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stale(now)
}

func (d *Dashboard) stale(now time.Time) bool {
	if d.latest == nil || d.latest.ReceivedAt == nil {
		return true
	}
	return now.Sub(*d.latest.ReceivedAt) > StaleAfter
}

// RenderInfo writes the telemetry panel
func (d *Dashboard) RenderInfo(w io.Writer, now time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.pollErr != nil {
		fmt.Fprintf(w, "%s\n", withColors("ground station unreachable: "+d.pollErr.Error(), fgRed, bold))
	}

	if d.latest == nil || d.latest.ReceivedAt == nil {
		fmt.Fprintln(w, withColors("No data received", fgYellow))
		return
	}

	received := fmt.Sprintf("received: %s", humanize.RelTime(*d.latest.ReceivedAt, now, "ago", "from now"))
	if d.stale(now) {
		received = withColors(received+" (STALE)", fgRed, bold)
	} else {
		received = withColors(received, fgGreen)
	}
	fmt.Fprintln(w, received)

	t := d.latest.Telemetry
	if t == nil {
		fmt.Fprintf(w, "undecoded: %s\n", d.latest.Raw)
		return
	}

	fmt.Fprintf(w, "time: %s\n", time.Duration(t.Timestamp)*time.Millisecond)
	fmt.Fprintf(w, "phase: %s chute: %s\n", formatPhase(t), formatChute(t.ChuteDeployed))
	fmt.Fprintf(w, "alt: %s m range: %s m\n", formatFloat(t.Altitude, "%.2f"), formatFloat(t.Range, "%.2f"))
	fmt.Fprintf(w, "pressure: %s Pa temp: %s C\n", formatFloat(t.Pressure, "%.1f"), formatFloat(t.Temperature, "%.1f"))
	fmt.Fprintf(w, "pitch: %s yaw: %s\n", formatFloat(t.Pitch, "%.2f"), formatFloat(t.Yaw, "%.2f"))
	fmt.Fprintf(w, "accel: %s g\n", formatVector(t.Accel))
	fmt.Fprintf(w, "gyro: %s deg/s\n", formatVector(t.Gyro))
	aux := "-"
	if t.Aux != nil {
		aux = *t.Aux
	}
	fmt.Fprintf(w, "aux: %s\n", aux)
}

// RenderQueues writes the relay queue panel
func (d *Dashboard) RenderQueues(w io.Writer) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.latest == nil {
		return
	}

	names := make([]string, 0, len(d.latest.Queues))
	for name := range d.latest.Queues {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		q := d.latest.Queues[name]
		line := fmt.Sprintf("%-10s %3d/%-3d dropped: %s", name, q.Len, q.Cap, humanize.Comma(int64(q.Dropped)))
		if q.Dropped > 0 {
			line = withColors(line, fgYellow)
		}
		fmt.Fprintln(w, line)
	}
}

func formatPhase(t *telemetry.Telemetry) string {
	if t.Phase == nil {
		return "-"
	}
	return withColors(t.Phase.String(), bold)
}

func formatChute(deployed *bool) string {
	switch {
	case deployed == nil:
		return "-"
	case *deployed:
		return withColors("deployed", fgGreen)
	default:
		return "stowed"
	}
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func formatVector(v *[3]float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%7.2f %7.2f %7.2f", v[0], v[1], v[2])
}
