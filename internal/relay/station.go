package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/rocket-telemetry/internal/auxlink"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
	"github.com/roman-kulish/rocket-telemetry/internal/telemetry"
)

// Config sizes the queues and timeouts of a Station
type Config struct {
	TelemetryQueue int           `yaml:"telemetryQueue"`
	CommandQueue   int           `yaml:"commandQueue"`
	ImageQueue     int           `yaml:"imageQueue"`
	ReceiveTimeout time.Duration `yaml:"receiveTimeout"` // Radio poll window
	WaitTimeout    time.Duration `yaml:"waitTimeout"`    // Longest the transmit task sleeps without a wake
}

func DefaultConfig() Config {
	return Config{
		TelemetryQueue: 10,
		CommandQueue:   10,
		ImageQueue:     100,
		ReceiveTimeout: 200 * time.Millisecond,
		WaitTimeout:    time.Second,
	}
}

// WithLogger sets the logger of the station and its queues
func WithLogger(logger *slog.Logger) func(*Station) {
	return func(s *Station) {
		s.logger = logger
	}
}

// WithTelemetryTap copies every telemetry line into q as well
func WithTelemetryTap(q *Queue) func(*Station) {
	return func(s *Station) {
		s.telemetryTaps = append(s.telemetryTaps, q)
	}
}

// WithImageTap copies every image payload into q as well
func WithImageTap(q *Queue) func(*Station) {
	return func(s *Station) {
		s.imageTaps = append(s.imageTaps, q)
	}
}

// WithCommandTap copies every command sent over the radio into q
func WithCommandTap(q *Queue) func(*Station) {
	return func(s *Station) {
		s.commandTaps = append(s.commandTaps, q)
	}
}

// Station relays between the radio and the operator. Telemetry and image
// payloads flow from RunReceive into Telemetry and Images; commands flow
// from Submit through Commands to RunTransmit.
type Station struct {
	arbiter *radio.Arbiter

	Telemetry *Queue
	Images    *Queue
	Commands  *Queue
	Wake      *Notifier
	Latest    telemetry.Latest

	telemetryTaps []*Queue
	imageTaps     []*Queue
	commandTaps   []*Queue

	receiveTimeout time.Duration
	waitTimeout    time.Duration

	logger *slog.Logger
}

// NewStation creates a station on top of arbiter
func NewStation(arbiter *radio.Arbiter, cfg Config, options ...func(*Station)) *Station {
	s := Station{
		arbiter:        arbiter,
		Wake:           NewNotifier(),
		receiveTimeout: cfg.ReceiveTimeout,
		waitTimeout:    cfg.WaitTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	s.Telemetry = NewQueue("telemetry", cfg.TelemetryQueue, QueueWithLogger(s.logger))
	s.Images = NewQueue("images", cfg.ImageQueue, QueueWithLogger(s.logger))
	s.Commands = NewQueue("commands", cfg.CommandQueue, QueueWithLogger(s.logger))

	return &s
}

// Submit queues an operator command for the radio and wakes the transmit
// task. It reports whether the command was accepted.
func (s *Station) Submit(cmd []byte) bool {
	ok := s.Commands.Offer(cmd)
	s.Wake.Notify()
	return ok
}

// RunTransmit sends queued commands until ctx is done. It sleeps until woken
// by Submit or until the wait timeout elapses.
func (s *Station) RunTransmit(ctx context.Context) error {
	logger := s.logger.With(slog.String("task", "ground-tx"))
	logger.Info("transmit task started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("transmit task stopped")
			return nil
		case <-s.Wake.C():
		case <-time.After(s.waitTimeout):
		}

		for {
			cmd, ok := s.Commands.TryTake()
			if !ok {
				break
			}

			if err := s.arbiter.Transmit(ctx, cmd); err != nil {
				logger.Error("sending command", slog.String("command", string(cmd)), slog.String("error", err.Error()))
				continue
			}

			logger.Info("command sent", slog.String("command", string(cmd)))
			offerAll(s.commandTaps, cmd)
		}
	}
}

// RunReceive polls the radio and routes inbound packets until ctx is done
func (s *Station) RunReceive(ctx context.Context) error {
	logger := s.logger.With(slog.String("task", "ground-rx"))
	logger.Info("receive task started")

	for {
		p, err := s.arbiter.Poll(ctx, s.receiveTimeout)
		switch {
		case err == nil:
			s.route(p, logger)
			continue

		case ctx.Err() != nil:
			logger.Info("receive task stopped")
			return nil

		case errors.Is(err, radio.ErrNoData):
			continue

		case errors.Is(err, radio.ErrYield):
			// a command is going out, give it the radio

		default:
			logger.Error("polling radio", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
		case <-time.After(radio.PollSlice):
		}
	}
}

// route sends image payloads to Images and everything else to Telemetry
func (s *Station) route(p []byte, logger *slog.Logger) {
	if len(p) == 0 {
		return
	}

	if p[0] == auxlink.TagImage {
		logger.Debug("image payload received", slog.String("size", humanize.Bytes(uint64(len(p)))))
		s.Images.Offer(p)
		offerAll(s.imageTaps, p)
		return
	}

	s.Telemetry.Offer(p)

	frame, err := telemetry.Decode(p)
	if err != nil {
		logger.Warn("undecodable telemetry", slog.String("line", string(p)), slog.String("error", err.Error()))
	}
	s.Latest.Store(p, frame)

	offerAll(s.telemetryTaps, p)
}

func offerAll(queues []*Queue, p []byte) {
	for _, q := range queues {
		q.Offer(p)
	}
}
