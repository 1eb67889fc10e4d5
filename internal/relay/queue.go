// Package relay implements the ground station: bounded message queues
// between the radio tasks and the HTTP surface, and the radio tasks that
// feed and drain them.
package relay

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// QueueWithLogger sets the logger used to report dropped messages
func QueueWithLogger(logger *slog.Logger) func(*Queue) {
	return func(q *Queue) {
		q.logger = logger
	}
}

// Queue is a bounded FIFO of messages. Offering to a full queue drops the
// offered message; producers never block.
type Queue struct {
	name    string
	ch      chan []byte
	dropped atomic.Uint64
	logger  *slog.Logger
}

// NewQueue creates a queue holding at most capacity messages
func NewQueue(name string, capacity int, options ...func(*Queue)) *Queue {
	q := Queue{
		name:   name,
		ch:     make(chan []byte, capacity),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&q)
	}

	return &q
}

// Offer enqueues a copy of msg and reports whether it was accepted
func (q *Queue) Offer(msg []byte) bool {
	select {
	case q.ch <- append([]byte(nil), msg...):
		return true
	default:
		dropped := q.dropped.Add(1)
		q.logger.Warn("queue full, message dropped",
			slog.String("queue", q.name),
			slog.Int("capacity", cap(q.ch)),
			slog.Uint64("dropped", dropped))
		return false
	}
}

// Take blocks until a message is available or ctx is done
func (q *Queue) Take(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Poll waits at most timeout for a message
func (q *Queue) Poll(timeout time.Duration) ([]byte, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-q.ch:
		return msg, true
	case <-t.C:
		return nil, false
	}
}

// TryTake returns the head of the queue without waiting
func (q *Queue) TryTake() ([]byte, bool) {
	select {
	case msg := <-q.ch:
		return msg, true
	default:
		return nil, false
	}
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Dropped returns the number of messages rejected since creation
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Notifier is a coalescing wake-up signal: any number of Notify calls before
// the waiter wakes result in a single wake.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify wakes the waiter without blocking
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C is signalled once per batch of notifications
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}
