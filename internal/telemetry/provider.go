package telemetry

import (
	"sync/atomic"
	"time"
)

type Provider interface {
	Get() *Telemetry
}

// Received is a telemetry line as it came off the radio
type Received struct {
	At    time.Time
	Raw   []byte
	Frame *Telemetry // nil when the line did not decode
}

// Latest holds the most recently received telemetry line. It is safe for
// concurrent use.
type Latest struct {
	v atomic.Pointer[Received]
}

// Store records a received line
func (l *Latest) Store(raw []byte, frame *Telemetry) {
	l.v.Store(&Received{
		At:    time.Now(),
		Raw:   append([]byte(nil), raw...),
		Frame: frame,
	})
}

// Load returns the latest line, or nil if nothing was received yet
func (l *Latest) Load() *Received {
	return l.v.Load()
}

// Get returns the decoded frame of the latest line, nil if it did not decode
func (l *Latest) Get() *Telemetry {
	if r := l.v.Load(); r != nil {
		return r.Frame
	}
	return nil
}
