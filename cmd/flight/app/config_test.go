package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/rocket-telemetry/internal/radio/driver"
	"github.com/roman-kulish/rocket-telemetry/internal/radio/rylr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
radio:
  driver: rylr
  rylr:
    port: /dev/ttyS1
    address: 1
    peer: 2
thresholds:
  deployCeiling: 450
tasks:
  transmitInterval: 500ms
sensors:
  driver: sim
  profile:
    launchDelay: 2s
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Settings.LogLevel)
	assert.Equal(t, "/dev/ttyS1", config.Radio.RYLR.Port)
	assert.Equal(t, uint16(2), config.Radio.RYLR.Peer)
	assert.Equal(t, uint32(rylr.BandFlight), config.Radio.RYLR.Band, "defaults are kept")
	assert.Equal(t, 115200, config.Radio.RYLR.BaudRate)
	assert.Equal(t, 450.0, config.Thresholds.DeployCeiling)
	assert.Equal(t, 1.5, config.Thresholds.LaunchAccel)
	assert.Equal(t, 500*time.Millisecond, config.Tasks.TransmitInterval)
	assert.Equal(t, 500*time.Millisecond, config.Thresholds.CycleInterval, "velocity is differenced at the transmit cadence")
	assert.Equal(t, time.Second, config.Tasks.ReceiveInterval)
	assert.Equal(t, 2*time.Second, config.Sensors.Profile.LaunchDelay)
	assert.Equal(t, ActuatorLog, config.Actuator.Driver)
}

func TestLoadConfigRejects(t *testing.T) {
	for name, content := range map[string]string{
		"unknown field": "radio:\n  driver: udp\n  udp: {local: ':0', peer: ':1'}\nbogus: 1\n",
		"no radio port": "settings:\n  logLevel: info\n",
		"aux port":      "radio:\n  driver: udp\n  udp: {local: ':0', peer: ':1'}\naux:\n  enabled: true\n",
		"gpio pins":     "radio:\n  driver: udp\n  udp: {local: ':0', peer: ':1'}\nactuator:\n  driver: gpio\n",
		"cycleInterval": "radio:\n  driver: udp\n  udp: {local: ':0', peer: ':1'}\nthresholds:\n  cycleInterval: 1s\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfigUsesFlightBand(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, driver.DriverRYLR, config.Radio.Driver)
	assert.Equal(t, uint32(rylr.BandFlight), config.Radio.RYLR.Band)
}

func TestConfigCycleIntervalFollowsTransmit(t *testing.T) {
	config := DefaultConfig()
	config.Radio.Driver = driver.DriverUDP
	config.Radio.UDP = driver.UDPConfig{Local: ":0", Peer: ":1"}
	assert.Equal(t, config.Tasks.TransmitInterval, config.Thresholds.CycleInterval)
	require.NoError(t, config.Validate())

	config.Tasks.TransmitInterval = 250 * time.Millisecond
	assert.ErrorContains(t, config.Validate(), "cycle interval")

	config.syncCycleInterval()
	assert.NoError(t, config.Validate())
}
