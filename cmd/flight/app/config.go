package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/rocket-telemetry/internal/auxlink"
	"github.com/roman-kulish/rocket-telemetry/internal/avionics"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/driver"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/rylr"
	"github.com/roman-kulish/rocket-telemetry/internal/sensor/sim"
)

const (
	SensorsSim = "sim"

	ActuatorGPIO = "gpio"
	ActuatorLog  = "log"
)

// Config represents the flight computer configuration
type Config struct {
	Settings   Settings          `yaml:"settings"`
	Radio      driver.Config     `yaml:"radio"`
	Sensors    SensorsConfig     `yaml:"sensors"`
	Thresholds flight.Thresholds `yaml:"thresholds"`
	Tasks      avionics.Config   `yaml:"tasks"`
	Aux        AuxConfig         `yaml:"aux"`
	Actuator   ActuatorConfig    `yaml:"actuator"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// SensorsConfig selects the sensor drivers
type SensorsConfig struct {
	Driver  string      `yaml:"driver"`
	Profile sim.Profile `yaml:"profile"`
}

// AuxConfig represents the link to the auxiliary camera computer
type AuxConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Serial    auxlink.PortConfig `yaml:"serial"`
	ChunkSize int                `yaml:"chunkSize"`
}

// ActuatorConfig represents the discrete outputs
type ActuatorConfig struct {
	Driver     string `yaml:"driver"`
	ChutePin   string `yaml:"chutePin"`   // Active low, idles high
	BurnoutPin string `yaml:"burnoutPin"` // Active high
}

func DefaultConfig() *Config {
	config := Config{
		Settings:   Settings{LogLevel: "info"},
		Radio:      driver.DefaultConfig(rylr.BandFlight),
		Sensors:    SensorsConfig{Driver: SensorsSim, Profile: sim.DefaultProfile()},
		Thresholds: flight.DefaultThresholds(),
		Tasks:      avionics.DefaultConfig(),
		Aux: AuxConfig{
			Serial:    auxlink.DefaultPortConfig(),
			ChunkSize: auxlink.DefaultChunkSize,
		},
		Actuator: ActuatorConfig{Driver: ActuatorLog},
	}
	config.syncCycleInterval()
	return &config
}

// syncCycleInterval makes the machine difference altitude over the interval
// the transmit task actually runs at
func (c *Config) syncCycleInterval() {
	c.Thresholds.CycleInterval = c.Tasks.TransmitInterval
}

// LoadConfig reads the configuration file at path over the defaults
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(p))
	dec.KnownFields(true)
	if err = dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	config.syncCycleInterval()

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if err := c.Radio.Validate(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	if c.Sensors.Driver != SensorsSim {
		return fmt.Errorf("sensors: unknown driver '%s'", c.Sensors.Driver)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if err := c.Tasks.Validate(); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	if c.Thresholds.CycleInterval != c.Tasks.TransmitInterval {
		return fmt.Errorf("thresholds: cycle interval %s differs from transmit interval %s",
			c.Thresholds.CycleInterval, c.Tasks.TransmitInterval)
	}

	if c.Aux.Enabled {
		if c.Aux.Serial.Port == "" {
			return fmt.Errorf("aux: serial port is required")
		}
		if c.Aux.ChunkSize < 2 || c.Aux.ChunkSize > rylr.MaxPayload {
			return fmt.Errorf("aux: chunkSize must be within 2..%d", rylr.MaxPayload)
		}
	}

	switch c.Actuator.Driver {
	case ActuatorLog:
	case ActuatorGPIO:
		if c.Actuator.ChutePin == "" || c.Actuator.BurnoutPin == "" {
			return fmt.Errorf("actuator: chutePin and burnoutPin are required")
		}
	default:
		return fmt.Errorf("actuator: unknown driver '%s'", c.Actuator.Driver)
	}
	return nil
}
