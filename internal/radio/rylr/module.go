// Package rylr drives RYLR896 class LoRa modules through their AT command
// set on a serial port.
package rylr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
)

const (
	readChunk   = 256
	readTimeout = 50 * time.Millisecond
)

var (
	// ErrNotRecognized is returned by Begin when the module does not answer AT
	ErrNotRecognized = errors.New("radio module not recognized")

	// ErrNoResponse is returned when the module did not answer a command in time
	ErrNoResponse = errors.New("no response from module")

	// ErrPayloadTooLarge is returned for a payload above MaxPayload
	ErrPayloadTooLarge = errors.New("payload too large")

	errDeadline = errors.New("deadline")
)

// WithLogger sets the logger of the module
func WithLogger(logger *slog.Logger) func(*Module) {
	return func(m *Module) {
		m.logger = logger.With(slog.String("radio", "rylr"))
	}
}

var (
	_ radio.Link           = (*Module)(nil)
	_ radio.SignalReporter = (*Module)(nil)
)

// Module is a radio.Link over a RYLR896 module
type Module struct {
	mu   sync.Mutex
	port io.ReadWriter
	cfg  Config

	buf     []byte
	chunk   []byte
	inbound [][]byte // packets received while waiting for a command response

	lost int
	rssi int
	snr  int

	logger *slog.Logger
}

// Open opens the serial port named in cfg. The returned closer releases the port.
func Open(cfg Config, options ...func(*Module)) (*Module, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid radio configuration: %w", err)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, nil, fault.New(fault.FatalInit, "open radio port", err)
	}

	return New(port, cfg, options...), port, nil
}

// New creates a module talking over port
func New(port io.ReadWriter, cfg Config, options ...func(*Module)) *Module {
	m := Module{
		port:   port,
		cfg:    cfg,
		chunk:  make([]byte, readChunk),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Begin checks the module is present and applies the configuration. Any
// failure is a fatal init fault.
func (m *Module) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.command(ctx, "AT"); err != nil {
		return fault.New(fault.FatalInit, "radio begin", fmt.Errorf("%w: %w", ErrNotRecognized, err))
	}

	for _, cmd := range m.cfg.commands() {
		if err := m.command(ctx, cmd); err != nil {
			return fault.New(fault.FatalInit, "radio configure", fmt.Errorf("%s: %w", cmd, err))
		}
	}

	m.logger.Info("radio module ready",
		slog.Int("address", int(m.cfg.Address)),
		slog.Int("band", int(m.cfg.Band)),
		slog.Int("spreadingFactor", int(m.cfg.SpreadingFactor)))
	return nil
}

func (m *Module) Send(ctx context.Context, p []byte) error {
	if len(p) > MaxPayload {
		return fault.New(fault.Protocol, "radio send", fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var cmd []byte
	cmd = fmt.Appendf(cmd, "AT+SEND=%d,%d,", m.cfg.Peer, len(p))
	cmd = append(cmd, p...)

	if err := m.command(ctx, string(cmd)); err != nil {
		m.lost++
		return fault.New(fault.Link, "radio send", err)
	}
	return nil
}

func (m *Module) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.inbound) > 0 {
		p := m.inbound[0]
		m.inbound = m.inbound[1:]
		return p, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		r, err := m.next(ctx, deadline)
		if errors.Is(err, errDeadline) {
			return nil, radio.ErrNoData
		}
		if err != nil {
			return nil, err
		}

		if r.kind == responseReceived {
			return r.data, nil
		}
		m.logger.Debug("unsolicited module output", slog.String("line", r.line))
	}
}

func (m *Module) LostPackets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lost
}

// Signal returns the RSSI and SNR of the last received packet
func (m *Module) Signal() (rssi, snr int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rssi, m.snr
}

// command writes an AT command and waits for +OK. Packets received in the
// meantime are queued for Receive.
func (m *Module) command(ctx context.Context, cmd string) error {
	if _, err := io.WriteString(m.port, cmd+"\r\n"); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}

	deadline := time.Now().Add(m.cfg.ResponseTimeout)
	for {
		r, err := m.next(ctx, deadline)
		if errors.Is(err, errDeadline) {
			return ErrNoResponse
		}
		if err != nil {
			return err
		}

		switch r.kind {
		case responseOK:
			return nil
		case responseError:
			return fmt.Errorf("module error %d", r.code)
		case responseReceived:
			m.inbound = append(m.inbound, r.data)
		default:
			m.logger.Debug("unsolicited module output", slog.String("line", r.line))
		}
	}
}

// next returns the next complete response, reading the port until deadline
func (m *Module) next(ctx context.Context, deadline time.Time) (response, error) {
	for {
		if r, n := scan(m.buf); n > 0 {
			m.buf = m.buf[n:]
			if r.kind == responseReceived {
				m.rssi, m.snr = r.rssi, r.snr
			}
			return r, nil
		}

		if err := ctx.Err(); err != nil {
			return response{}, err
		}
		if !time.Now().Before(deadline) {
			return response{}, errDeadline
		}

		n, err := m.port.Read(m.chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			return response{}, fault.New(fault.Link, "radio read", err)
		}
		m.buf = append(m.buf, m.chunk[:n]...)
	}
}
