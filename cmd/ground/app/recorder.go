package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/relay"
	"github.com/roman-kulish/rocket-telemetry/internal/storage"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

// Recorder drains the relay taps into a storage.Recorder under one session.
// Storage latency never reaches the radio tasks: a slow store only fills
// the taps, which drop their newest lines.
type Recorder struct {
	sessionID int64
	recorder  storage.Recorder
	telemetry *relay.Queue
	commands  *relay.Queue
	logger    *slog.Logger
}

func NewRecorder(sessionID int64, recorder storage.Recorder, telemetry, commands *relay.Queue, logger *slog.Logger) *Recorder {
	return &Recorder{
		sessionID: sessionID,
		recorder:  recorder,
		telemetry: telemetry,
		commands:  commands,
		logger:    logger.With(slog.String("task", "recorder")),
	}
}

// Run records until ctx is done
func (r *Recorder) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.drain(ctx, r.telemetry, r.storeTelemetry)
	}()
	go func() {
		defer wg.Done()
		r.drain(ctx, r.commands, r.storeCommand)
	}()

	wg.Wait()
	return nil
}

func (r *Recorder) drain(ctx context.Context, q *relay.Queue, store func(context.Context, []byte) error) {
	for {
		msg, err := q.Take(ctx)
		if err != nil {
			return
		}

		if err = store(ctx, msg); err != nil && ctx.Err() == nil {
			r.logger.Error("recording", slog.String("queue", q.Name()), slog.String("error", err.Error()))
		}
	}
}

func (r *Recorder) storeTelemetry(ctx context.Context, line []byte) error {
	frame, err := telemetry.Decode(line)
	if err != nil {
		frame = nil
	}
	return r.recorder.StoreTelemetry(ctx, r.sessionID, time.Now(), line, frame)
}

func (r *Recorder) storeCommand(ctx context.Context, cmd []byte) error {
	return r.recorder.StoreCommand(ctx, r.sessionID, time.Now(), cmd)
}
