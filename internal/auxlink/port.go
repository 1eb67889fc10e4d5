package auxlink

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
)

// PortConfig configures the serial line to the auxiliary computer
type PortConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baudRate"`
	ReadTimeout time.Duration `yaml:"readTimeout"`
}

func DefaultPortConfig() PortConfig {
	return PortConfig{
		BaudRate:    115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// OpenPort opens the auxiliary serial line. Reads return no data once
// ReadTimeout elapses, as Channel expects.
func OpenPort(cfg PortConfig) (io.ReadWriteCloser, error) {
	if cfg.Port == "" {
		return nil, fault.New(fault.FatalInit, "aux port", fmt.Errorf("serial port is required"))
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fault.New(fault.FatalInit, "aux port", err)
	}
	return port, nil
}
