package auxlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultChunkSize keeps a relayed image chunk, tag included, within one radio payload
	DefaultChunkSize = 240

	// DefaultStartTimeout is how long the camera may take to start streaming an image
	DefaultStartTimeout = 3 * time.Second

	readBuffer = 512
)

// RelayFunc sends one tagged image chunk over the primary radio
type RelayFunc func(ctx context.Context, chunk []byte) error

// WithLogger sets the logger of the channel
func WithLogger(logger *slog.Logger) func(*Channel) {
	return func(c *Channel) {
		c.logger = logger.With(slog.String("task", "aux"))
	}
}

// WithChunkSize sets the size of relayed chunks, tag included
func WithChunkSize(n int) func(*Channel) {
	return func(c *Channel) {
		c.chunkSize = n
	}
}

// WithStartTimeout sets how long to wait for the first image byte
func WithStartTimeout(d time.Duration) func(*Channel) {
	return func(c *Channel) {
		c.startTimeout = d
	}
}

// Channel runs the auxiliary link. The port must return (0, nil) or io.EOF
// when a read times out without data.
type Channel struct {
	port     io.ReadWriter
	relay    RelayFunc
	Requests *RequestSlot
	Status   *Status

	chunkSize    int
	startTimeout time.Duration
	buf          []byte
	inGPS        bool

	logger *slog.Logger
}

// NewChannel creates a channel on port relaying image chunks through relay
func NewChannel(port io.ReadWriter, relay RelayFunc, options ...func(*Channel)) *Channel {
	c := Channel{
		port:         port,
		relay:        relay,
		Requests:     &RequestSlot{},
		Status:       NewStatus(),
		chunkSize:    DefaultChunkSize,
		startTimeout: DefaultStartTimeout,
		buf:          make([]byte, readBuffer),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Run serves requests and reads the link until ctx is done or a shutdown
// request has been delivered. A shutdown ends the task for good.
func (c *Channel) Run(ctx context.Context) error {
	c.logger.Info("aux task started")

	for ctx.Err() == nil {
		switch req := c.Requests.Take(); req {
		case RequestSave:
			if err := c.instruct(req); err != nil {
				c.logger.Error("requesting image save", slog.String("error", err.Error()))
				break
			}
			// the aux computer saves on its own, the request is done once delivered
			c.Status.SetState(StateSave)
			err := c.poll(ctx)
			c.Status.SetState(StateIdle)
			if err != nil {
				return err
			}
			continue

		case RequestTransmit:
			if err := c.instruct(req); err != nil {
				c.logger.Error("requesting image transmit", slog.String("error", err.Error()))
				break
			}
			c.Status.SetState(StateTransmit)
			if err := c.relayImage(ctx); err != nil {
				c.logger.Error("relaying image", slog.String("error", err.Error()))
			}
			c.Status.SetState(StateIdle)

		case RequestShutdown:
			if err := c.instruct(req); err != nil {
				c.logger.Error("requesting shutdown", slog.String("error", err.Error()))
			}
			c.Status.SetState(StateOff)
			c.logger.Info("aux task stopped after shutdown request")
			return nil
		}

		if err := c.poll(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (c *Channel) instruct(r Request) error {
	c.logger.Info("aux request", slog.String("request", r.String()))
	if _, err := c.port.Write([]byte{r.instruction()}); err != nil {
		return fmt.Errorf("writing instruction: %w", err)
	}
	return nil
}

// poll performs one read of the idle link
func (c *Channel) poll(ctx context.Context) error {
	n, err := c.read()
	if err != nil {
		return err
	}
	if n == 0 {
		if c.inGPS {
			c.Status.EndGPS()
			c.inGPS = false
		}
		return nil
	}

	data := c.buf[:n]
	if c.inGPS && data[0] != TagGPS && data[0] != TagImage {
		c.Status.AppendGPS(data)
		return nil
	}

	msg, err := Parse(data)
	if err != nil {
		c.logger.Warn("unrecognized aux message", slog.String("error", err.Error()))
		return nil
	}

	switch msg.Tag {
	case TagGPS:
		if c.inGPS {
			c.Status.EndGPS()
		}
		c.inGPS = true
		c.Status.AppendGPS(msg.Payload)

	case TagImage:
		// an image nobody asked for, relay it all the same
		c.inGPS = false
		return c.relayStream(ctx, msg.Payload)
	}

	return nil
}

// relayImage waits for the image stream that follows a transmit request
func (c *Channel) relayImage(ctx context.Context) error {
	deadline := time.Now().Add(c.startTimeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := c.read()
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		data := c.buf[:n]
		if data[0] == TagImage {
			data = data[1:]
		}
		return c.relayStream(ctx, data)
	}

	return fmt.Errorf("no image within %s", c.startTimeout)
}

// relayStream forwards first and the rest of the stream in tagged chunks
// until a read comes back empty
func (c *Channel) relayStream(ctx context.Context, first []byte) error {
	size := c.chunkSize - 1
	pending := append(make([]byte, 0, 2*size), first...)
	var total, chunks int

	flush := func(all bool) error {
		for len(pending) >= size || (all && len(pending) > 0) {
			n := min(size, len(pending))

			chunk := make([]byte, 0, n+1)
			chunk = append(chunk, TagImage)
			chunk = append(chunk, pending[:n]...)

			if err := c.relay(ctx, chunk); err != nil {
				return fmt.Errorf("relaying chunk %d: %w", chunks, err)
			}
			pending = pending[n:]
			total += n
			chunks++
		}
		return nil
	}

	for {
		if err := flush(false); err != nil {
			return err
		}

		n, err := c.read()
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		pending = append(pending, c.buf[:n]...)
	}

	if err := flush(true); err != nil {
		return err
	}

	c.logger.Info("image relayed", slog.String("size", humanize.Bytes(uint64(total))), slog.Int("chunks", chunks))
	return nil
}

func (c *Channel) read() (int, error) {
	n, err := c.port.Read(c.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("reading aux link: %w", err)
	}
	return n, nil
}
