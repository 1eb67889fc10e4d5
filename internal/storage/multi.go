package storage

import (
	"context"
	"errors"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

// MultiRecorder fans every call out to all of its recorders. A failing
// recorder does not stop the others; the errors are joined.
type MultiRecorder []Recorder

var _ Recorder = MultiRecorder(nil)

func (m MultiRecorder) StoreTelemetry(ctx context.Context, sessionID int64, receivedAt time.Time, raw []byte, t *telemetry.Telemetry) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.StoreTelemetry(ctx, sessionID, receivedAt, raw, t))
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) StoreCommand(ctx context.Context, sessionID int64, sentAt time.Time, raw []byte) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.StoreCommand(ctx, sessionID, sentAt, raw))
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
