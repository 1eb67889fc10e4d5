package auxlink

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
)

// scriptPort replays scripted reads; an empty read stands for a read timeout
type scriptPort struct {
	mu      sync.Mutex
	reads   [][]byte
	written []byte
}

func (p *scriptPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.reads) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	r := p.reads[0]
	p.reads = p.reads[1:]
	p.mu.Unlock()

	return copy(b, r), nil
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *scriptPort) script(reads ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, reads...)
}

func (p *scriptPort) instructions() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

func TestParse(t *testing.T) {
	msg, err := Parse([]byte("G4807.03,N"))
	require.NoError(t, err)
	assert.Equal(t, TagGPS, msg.Tag)
	assert.Equal(t, "4807.03,N", string(msg.Payload))

	msg, err = Parse([]byte{'I', 0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, TagImage, msg.Tag)
	assert.Equal(t, []byte{0xff, 0xd8}, msg.Payload)

	_, err = Parse([]byte("X"))
	assert.ErrorIs(t, err, ErrUnknownTag)
	assert.True(t, fault.Is(err, fault.Protocol))

	_, err = Parse(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRequestSlotIsSingleShot(t *testing.T) {
	var s RequestSlot
	assert.Equal(t, RequestNone, s.Take())

	s.Set(RequestSave)
	s.Set(RequestTransmit)
	assert.Equal(t, RequestTransmit, s.Take())
	assert.Equal(t, RequestNone, s.Take())
}

func TestStatusAccumulatesGPS(t *testing.T) {
	s := NewStatus()
	assert.Equal(t, "IDLE", s.String())

	s.AppendGPS([]byte("4807.03,N,"))
	assert.Equal(t, "IDLE", s.String(), "incomplete sentence is not reported")

	s.AppendGPS([]byte("01131.00,E\r\n5"))
	assert.Equal(t, "IDLE,4807.03,N,01131.00,E", s.String())

	s.SetState(StateTransmit)
	s.AppendGPS([]byte("1.00:,2.00"))
	s.EndGPS()
	assert.Equal(t, "TX,51.00,2.00", s.String())
}

func TestChannelRelaysImage(t *testing.T) {
	image := bytes.Repeat([]byte{0xab, 0xcd, 0x0a}, 167) // 501 bytes

	port := &scriptPort{}
	port.script(
		append([]byte{TagImage}, image[:300]...),
		image[300:],
		[]byte{},
	)

	var mu sync.Mutex
	var chunks [][]byte
	relayed := make(chan struct{}, 16)

	c := NewChannel(port, func(_ context.Context, chunk []byte) error {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, chunk)
		relayed <- struct{}{}
		return nil
	}, WithChunkSize(100))

	c.Requests.Set(RequestTransmit)

	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background())
	}()

	for i := 0; i < 6; i++ {
		select {
		case <-relayed:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d chunks relayed", i)
		}
	}

	c.Requests.Set(RequestShutdown)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("aux task did not stop after shutdown")
	}

	mu.Lock()
	defer mu.Unlock()

	var joined []byte
	for _, chunk := range chunks {
		require.Equal(t, TagImage, chunk[0])
		require.LessOrEqual(t, len(chunk), 100)
		joined = append(joined, chunk[1:]...)
	}
	assert.Len(t, chunks, 6)
	assert.Equal(t, image, joined)
	assert.Equal(t, "ts", port.instructions())
	assert.Equal(t, StateOff, c.Status.String())
}

func TestChannelCollectsGPS(t *testing.T) {
	port := &scriptPort{}
	port.script([]byte("G4807.03,N,"), []byte("01131.00,E\n"))

	c := NewChannel(port, func(context.Context, []byte) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return c.Status.GPS() == "4807.03,N,01131.00,E"
	}, 2*time.Second, 5*time.Millisecond)

	c.Requests.Set(RequestSave)
	require.Eventually(t, func() bool {
		return port.instructions() == "c"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "IDLE,4807.03,N,01131.00,E", c.Status.String())
}

func TestChannelSaveReturnsToIdle(t *testing.T) {
	port := &scriptPort{}
	c := NewChannel(port, func(context.Context, []byte) error {
		t.Error("nothing should be relayed")
		return nil
	})

	c.Requests.Set(RequestSave)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, "c", port.instructions())
	assert.Equal(t, RequestNone, c.Requests.Take())
	assert.Equal(t, StateIdle, c.Status.String())
}

func TestChannelTransmitWithoutImage(t *testing.T) {
	port := &scriptPort{}
	c := NewChannel(port, func(context.Context, []byte) error {
		t.Error("nothing should be relayed")
		return nil
	}, WithStartTimeout(20*time.Millisecond))

	c.Requests.Set(RequestTransmit)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, "t", port.instructions())
	assert.Equal(t, StateIdle, c.Status.String())
}
