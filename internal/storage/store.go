package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

// Session is one run of the ground station
type Session struct {
	ID        int64
	StartTime time.Time
	Station   string
	Radio     string
	Config    *string
}

// Record is a telemetry line as it was received
type Record struct {
	ID         int64
	ReceivedAt time.Time
	Raw        string
	Frame      *telemetry.Telemetry
}

// Recorder persists what the ground station receives and sends
type Recorder interface {
	// StoreTelemetry saves a received telemetry line. t is nil when the
	// line did not decode; the raw line is kept regardless.
	StoreTelemetry(ctx context.Context, sessionID int64, receivedAt time.Time, raw []byte, t *telemetry.Telemetry) error

	// StoreCommand saves a command sent over the radio
	StoreCommand(ctx context.Context, sessionID int64, sentAt time.Time, raw []byte) error

	// Close releases all resources. It is safe to call Close multiple times.
	Close() error
}

// Store is a Recorder that keeps sessions and can read the flight back
type Store interface {
	Recorder

	// CreateSession starts a new session. config is optional and can be a
	// string, []byte or any JSON-serializable value.
	CreateSession(ctx context.Context, station, radio string, config any) (sessionID int64, err error)

	// Session retrieves a session by its ID
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all sessions ordered by start time
	Sessions(ctx context.Context) ([]*Session, error)

	// ReadTelemetry returns the telemetry of a session in the order received
	ReadTelemetry(ctx context.Context, sessionID int64, opts ...ReadOption) ([]*Record, error)
}
