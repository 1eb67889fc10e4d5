// Package driver opens the radio link selected by configuration
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/rylr"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/udp"
)

const (
	DriverRYLR = "rylr"
	DriverUDP  = "udp"
)

// UDPConfig configures the bench link
type UDPConfig struct {
	Local string `yaml:"local"` // host:port to bind
	Peer  string `yaml:"peer"`  // host:port of the other station
}

// Config selects and configures the radio link
type Config struct {
	Driver string      `yaml:"driver"`
	RYLR   rylr.Config `yaml:"rylr"`
	UDP    UDPConfig   `yaml:"udp"`
}

// DefaultConfig returns a RYLR link on the given band
func DefaultConfig(band uint32) Config {
	cfg := Config{
		Driver: DriverRYLR,
		RYLR:   rylr.DefaultConfig(),
	}
	cfg.RYLR.Band = band
	return cfg
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverRYLR:
		if err := c.RYLR.Validate(); err != nil {
			return fmt.Errorf("rylr: %w", err)
		}
	case DriverUDP:
		if c.UDP.Local == "" || c.UDP.Peer == "" {
			return fmt.Errorf("udp: local and peer addresses are required")
		}
	default:
		return fmt.Errorf("unknown radio driver '%s'", c.Driver)
	}
	return nil
}

// Open opens the configured link and makes it ready for use. The returned
// closer releases the link. Failing to bring the link up is a fatal init fault.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (radio.Link, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fault.New(fault.FatalInit, "radio config", err)
	}

	switch cfg.Driver {
	case DriverUDP:
		link, err := udp.Listen(cfg.UDP.Local, cfg.UDP.Peer)
		if err != nil {
			return nil, nil, fault.New(fault.FatalInit, "radio open", err)
		}
		logger.Info("udp radio link ready", slog.String("local", link.LocalAddr().String()), slog.String("peer", cfg.UDP.Peer))
		return link, link, nil

	default:
		module, port, err := rylr.Open(cfg.RYLR, rylr.WithLogger(logger))
		if err != nil {
			return nil, nil, fault.New(fault.FatalInit, "radio open", err)
		}
		if err = module.Begin(ctx); err != nil {
			_ = port.Close()
			return nil, nil, err
		}
		return module, port, nil
	}
}
