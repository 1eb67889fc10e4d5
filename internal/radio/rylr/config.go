package rylr

import (
	"fmt"
	"time"
)

const (
	// MaxPayload is the largest payload of a single AT+SEND
	MaxPayload = 240

	BandFlight = 915000000
	BandGround = 909000000
)

// Config configures a RYLR896 class module
type Config struct {
	Port     string `yaml:"port"`     // Serial device, e.g. /dev/ttyS1
	BaudRate int    `yaml:"baudRate"` // UART baud rate

	Address   uint16 `yaml:"address"`   // Own address, 0-65535
	Peer      uint16 `yaml:"peer"`      // Destination address, 0 broadcasts
	NetworkID uint8  `yaml:"networkID"` // 0-16, identical on both ends
	Band      uint32 `yaml:"band"`      // Center frequency in Hz

	SpreadingFactor uint8 `yaml:"spreadingFactor"` // 7-12
	Bandwidth       uint8 `yaml:"bandwidth"`       // 0-9, 7 is 125 kHz
	CodingRate      uint8 `yaml:"codingRate"`      // 1-4
	Preamble        uint8 `yaml:"preamble"`        // 4-7

	ResponseTimeout time.Duration `yaml:"responseTimeout"` // Wait for +OK after a command
}

// DefaultConfig returns the link settings of the flight computer
func DefaultConfig() Config {
	return Config{
		BaudRate:        115200,
		NetworkID:       6,
		Band:            BandFlight,
		SpreadingFactor: 7,
		Bandwidth:       7,
		CodingRate:      1,
		Preamble:        4,
		ResponseTimeout: 3 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("serial port is required")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.NetworkID > 16 {
		return fmt.Errorf("network ID %d out of range 0-16", c.NetworkID)
	}
	if c.Band < 433000000 || c.Band > 915000000 {
		return fmt.Errorf("band %d Hz out of range", c.Band)
	}
	if c.SpreadingFactor < 7 || c.SpreadingFactor > 12 {
		return fmt.Errorf("spreading factor %d out of range 7-12", c.SpreadingFactor)
	}
	if c.Bandwidth > 9 {
		return fmt.Errorf("bandwidth %d out of range 0-9", c.Bandwidth)
	}
	if c.CodingRate < 1 || c.CodingRate > 4 {
		return fmt.Errorf("coding rate %d out of range 1-4", c.CodingRate)
	}
	if c.Preamble < 4 || c.Preamble > 7 {
		return fmt.Errorf("preamble %d out of range 4-7", c.Preamble)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("response timeout must be positive")
	}
	return nil
}

func (c *Config) commands() []string {
	return []string{
		fmt.Sprintf("AT+ADDRESS=%d", c.Address),
		fmt.Sprintf("AT+NETWORKID=%d", c.NetworkID),
		fmt.Sprintf("AT+BAND=%d", c.Band),
		fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d", c.SpreadingFactor, c.Bandwidth, c.CodingRate, c.Preamble),
	}
}
