package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// PollSlice is the longest a receive poll holds the radio without
	// checking for a waiting transmit.
	PollSlice = 20 * time.Millisecond
)

// Stats are running counters of radio usage
type Stats struct {
	Sent         uint64
	SendFailures uint64
	Received     uint64
	Yields       uint64
	RSSI         int // Of the last received packet, 0 when the link does not report it
	SNR          int
}

// WithLogger sets the logger of the arbiter
func WithLogger(logger *slog.Logger) func(*Arbiter) {
	return func(a *Arbiter) {
		a.logger = logger
	}
}

// WithPollSlice overrides PollSlice
func WithPollSlice(d time.Duration) func(*Arbiter) {
	return func(a *Arbiter) {
		a.slice = d
	}
}

// Arbiter grants exclusive use of a Link. A transmit owns the radio for the
// whole of one send; while a transmit is waiting, no receive poll starts and
// a running poll gives the radio up at its next slice.
type Arbiter struct {
	mu      sync.Mutex
	link    Link
	pending atomic.Int32
	slice   time.Duration

	lost int // guarded by mu

	sent     atomic.Uint64
	failed   atomic.Uint64
	received atomic.Uint64
	yields   atomic.Uint64
	rssi     atomic.Int32
	snr      atomic.Int32

	logger *slog.Logger
}

// NewArbiter creates an arbiter of link
func NewArbiter(link Link, options ...func(*Arbiter)) *Arbiter {
	a := Arbiter{
		link:   link,
		slice:  PollSlice,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	return &a
}

// Transmit sends p as one critical section
func (a *Arbiter) Transmit(ctx context.Context, p []byte) error {
	a.pending.Add(1)

	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.pending.Add(-1)

	err := a.link.Send(ctx, p)

	if lost := a.link.LostPackets(); lost > a.lost {
		a.logger.Warn("radio packets lost", slog.Int("lost", lost), slog.Int("new", lost-a.lost))
		a.lost = lost
	}

	if err != nil {
		a.failed.Add(1)
		return fmt.Errorf("transmitting %d bytes: %w", len(p), err)
	}

	a.sent.Add(1)
	return nil
}

// Poll waits up to timeout for an inbound packet. It returns ErrNoData when
// nothing arrived and ErrYield when it gave the radio up to a transmit.
func (a *Arbiter) Poll(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if a.pending.Load() > 0 {
		a.yields.Add(1)
		return nil, ErrYield
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if a.pending.Load() > 0 {
			a.yields.Add(1)
			return nil, ErrYield
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoData
		}

		p, err := a.link.Receive(ctx, min(a.slice, remaining))
		switch {
		case err == nil:
			a.received.Add(1)
			a.observeSignal(len(p))
			return p, nil

		case errors.Is(err, ErrNoData):
			continue

		default:
			return nil, fmt.Errorf("receiving: %w", err)
		}
	}
}

func (a *Arbiter) observeSignal(size int) {
	sr, ok := a.link.(SignalReporter)
	if !ok {
		return
	}

	rssi, snr := sr.Signal()
	a.rssi.Store(int32(rssi))
	a.snr.Store(int32(snr))
	a.logger.Debug("packet received", slog.Int("bytes", size), slog.Int("rssi", rssi), slog.Int("snr", snr))
}

// Stats returns the usage counters
func (a *Arbiter) Stats() Stats {
	return Stats{
		Sent:         a.sent.Load(),
		SendFailures: a.failed.Load(),
		Received:     a.received.Load(),
		Yields:       a.yields.Load(),
		RSSI:         int(a.rssi.Load()),
		SNR:          int(a.snr.Load()),
	}
}
