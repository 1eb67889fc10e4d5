package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
)

type fakeLink struct {
	mu      sync.Mutex
	sent    []string
	inbound chan []byte
}

func newFakeLink() *fakeLink {
	return &fakeLink{inbound: make(chan []byte, 64)}
}

func (l *fakeLink) Send(_ context.Context, p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, string(p))
	return nil
}

func (l *fakeLink) Receive(_ context.Context, timeout time.Duration) ([]byte, error) {
	select {
	case p := <-l.inbound:
		return p, nil
	case <-time.After(timeout):
		return nil, radio.ErrNoData
	}
}

func (l *fakeLink) LostPackets() int {
	return 0
}

func (l *fakeLink) sentCommands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

func TestQueueDropsNewest(t *testing.T) {
	q := NewQueue("test", 3)

	for i := 1; i <= 5; i++ {
		accepted := q.Offer([]byte(fmt.Sprint(i)))
		assert.Equal(t, i <= 3, accepted, "message %d", i)
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, 3, q.Cap())
	assert.Equal(t, uint64(2), q.Dropped())

	for _, want := range []string{"1", "2", "3"} {
		msg, ok := q.TryTake()
		require.True(t, ok)
		assert.Equal(t, want, string(msg))
	}

	_, ok := q.TryTake()
	assert.False(t, ok)
}

func TestQueueOfferNeverBlocks(t *testing.T) {
	q := NewQueue("test", 1)
	q.Offer([]byte("a"))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Offer([]byte("b"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("offer blocked on a full queue")
	}
	assert.Equal(t, 1, q.Len())
}

func TestQueueCopiesMessage(t *testing.T) {
	q := NewQueue("test", 1)

	msg := []byte("abc")
	q.Offer(msg)
	msg[0] = 'x'

	got, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestQueueWaits(t *testing.T) {
	q := NewQueue("test", 1)

	_, ok := q.Poll(10 * time.Millisecond)
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Offer([]byte("late"))
	}()
	msg, ok := q.Poll(time.Second)
	require.True(t, ok)
	assert.Equal(t, "late", string(msg))
}

func TestNotifierCoalesces(t *testing.T) {
	n := NewNotifier()
	n.Notify()
	n.Notify()
	n.Notify()

	<-n.C()
	select {
	case <-n.C():
		t.Fatal("notifications were not coalesced")
	default:
	}
}

func newTestStation(link *fakeLink, options ...func(*Station)) *Station {
	cfg := DefaultConfig()
	cfg.ReceiveTimeout = 20 * time.Millisecond
	cfg.WaitTimeout = 5 * time.Second
	return NewStation(radio.NewArbiter(link), cfg, options...)
}

func run(t *testing.T, tasks ...func(context.Context) error) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, task(ctx))
		}()
	}

	return func() {
		cancel()
		wg.Wait()
	}
}

func TestStationRoutesByTag(t *testing.T) {
	link := newFakeLink()
	images := NewQueue("archive", 10)
	s := newTestStation(link, WithImageTap(images))

	link.inbound <- []byte("DWL:1000:ALT:12.50:STATE:1EOT")
	link.inbound <- []byte("I\xff\xd8\xff")
	link.inbound <- []byte("garbage")

	stop := run(t, s.RunReceive)
	defer stop()

	require.Eventually(t, func() bool {
		return s.Telemetry.Len() == 2 && s.Images.Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	msg, _ := s.Telemetry.TryTake()
	assert.Equal(t, "DWL:1000:ALT:12.50:STATE:1EOT", string(msg))

	img, _ := s.Images.TryTake()
	assert.Equal(t, "I\xff\xd8\xff", string(img))
	assert.Equal(t, 1, images.Len())

	latest := s.Latest.Load()
	require.NotNil(t, latest)
	assert.Equal(t, "garbage", string(latest.Raw))
	assert.Nil(t, latest.Frame)
}

func TestStationLatestTelemetry(t *testing.T) {
	link := newFakeLink()
	s := newTestStation(link)

	link.inbound <- []byte("DWL:1000:ALT:12.50:STATE:1EOT")

	stop := run(t, s.RunReceive)
	defer stop()

	require.Eventually(t, func() bool {
		return s.Latest.Get() != nil
	}, 2*time.Second, 5*time.Millisecond)

	frame := s.Latest.Get()
	assert.Equal(t, uint64(1000), frame.Timestamp)
	assert.Equal(t, flight.Launch, *frame.Phase)
	assert.InDelta(t, 12.5, *frame.Altitude, 1e-9)
}

func TestStationKeepsReceivingWhenSaturated(t *testing.T) {
	link := newFakeLink()
	s := newTestStation(link)

	for i := 0; i < 15; i++ {
		link.inbound <- []byte(fmt.Sprintf("DWL:%dEOT", i))
	}

	stop := run(t, s.RunReceive)
	defer stop()

	require.Eventually(t, func() bool {
		return len(link.inbound) == 0 && s.Telemetry.Dropped() == 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 10, s.Telemetry.Len())
	first, _ := s.Telemetry.TryTake()
	assert.Equal(t, "DWL:0EOT", string(first))
	assert.Equal(t, uint64(14), s.Latest.Get().Timestamp)
}

func TestStationSubmitWakesTransmit(t *testing.T) {
	link := newFakeLink()
	sent := NewQueue("sent", 10)
	s := newTestStation(link, WithCommandTap(sent))

	stop := run(t, s.RunTransmit, s.RunReceive)
	defer stop()

	start := time.Now()
	require.True(t, s.Submit([]byte("CMD:STATE:2")))
	require.True(t, s.Submit([]byte("CMD:TIMAGE:")))

	require.Eventually(t, func() bool {
		return len(link.sentCommands()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Less(t, time.Since(start), 2*time.Second, "transmit waited for its timeout")
	assert.Equal(t, []string{"CMD:STATE:2", "CMD:TIMAGE:"}, link.sentCommands())
	assert.Equal(t, 2, sent.Len())
}

func TestStationSubmitFullQueue(t *testing.T) {
	s := newTestStation(newFakeLink())

	for i := 0; i < s.Commands.Cap(); i++ {
		require.True(t, s.Submit([]byte("CMD:IMAGE:")))
	}
	assert.False(t, s.Submit([]byte("CMD:IMAGE:")))
	assert.Equal(t, uint64(1), s.Commands.Dropped())
}
