package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/rocket-telemetry/internal/imaging"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/driver"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/rylr"
	"github.com/roman-kulish/rocket-telemetry/internal/relay"
	"github.com/roman-kulish/rocket-telemetry/internal/storage"
)

const (
	storageDir = "data"
	imagesDir  = "images"

	defaultListen  = ":80"
	defaultTapSize = 100
)

// Config represents the ground station configuration
type Config struct {
	Settings Settings             `yaml:"settings"`
	Radio    driver.Config        `yaml:"radio"`
	HTTP     HTTPConfig           `yaml:"http"`
	Relay    relay.Config         `yaml:"relay"`
	Storage  StorageConfig        `yaml:"storage"`
	Influx   storage.InfluxConfig `yaml:"influx"`
	Images   ImagesConfig         `yaml:"images"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// HTTPConfig represents the operator HTTP surface
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// StorageConfig represents the flight recorder
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	TapSize       int    `yaml:"tapSize"` // Backlog of lines waiting to be recorded
}

// ImagesConfig represents the image archive
type ImagesConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Directory   string        `yaml:"directory"`
	IdleTimeout time.Duration `yaml:"idleTimeout"` // Gap that ends an image
	TapSize     int           `yaml:"tapSize"`
}

func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: "info"},
		Radio:    driver.DefaultConfig(rylr.BandGround),
		HTTP:     HTTPConfig{Listen: defaultListen},
		Relay:    relay.DefaultConfig(),
		Storage: StorageConfig{
			Enabled:       true,
			DataDirectory: storageDir,
			TapSize:       defaultTapSize,
		},
		Images: ImagesConfig{
			Enabled:     true,
			Directory:   imagesDir,
			IdleTimeout: imaging.DefaultIdleTimeout,
			TapSize:     defaultTapSize,
		},
	}
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

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if err := c.Radio.Validate(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http: listen address is required")
	}
	if c.Relay.TelemetryQueue <= 0 || c.Relay.CommandQueue <= 0 || c.Relay.ImageQueue <= 0 {
		return fmt.Errorf("relay: queue sizes must be positive")
	}
	if c.Relay.ReceiveTimeout <= 0 || c.Relay.WaitTimeout <= 0 {
		return fmt.Errorf("relay: timeouts must be positive")
	}
	if c.Storage.Enabled && c.Storage.TapSize <= 0 {
		return fmt.Errorf("storage: tapSize must be positive")
	}
	if err := c.Influx.Validate(); err != nil {
		return err
	}
	if c.Images.Enabled && (c.Images.TapSize <= 0 || c.Images.IdleTimeout <= 0) {
		return fmt.Errorf("images: tapSize and idleTimeout must be positive")
	}
	return nil
}
