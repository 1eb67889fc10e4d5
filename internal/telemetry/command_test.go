package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"CMD:STATE:0", StateOverride(flight.Ground)},
		{"CMD:STATE:2", StateOverride(flight.Coast)},
		{"CMD:STATE:5:", StateOverride(flight.Landed)},
		{"CMD:STATE:3\x00", StateOverride(flight.Deploy)},
		{"CMD:IMAGE:", Command{Kind: CommandImageSave}},
		{"CMD:TIMAGE:", Command{Kind: CommandImageTransmit}},
		{"CMD:SIMAGE:\r\n", Command{Kind: CommandImageShutdown}},
		{"CMD:SIMAGE", Command{Kind: CommandImageShutdown}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandRejects(t *testing.T) {
	tests := []struct {
		in      string
		wantErr error
	}{
		{"CMD:STATE:6", ErrInvalidPhase},
		{"CMD:STATE:-1", ErrInvalidPhase},
		{"CMD:STATE:", ErrInvalidPhase},
		{"CMD:STATE:two", ErrInvalidPhase},
		{"CMD:LAUNCH:", ErrUnknownCommand},
		{"DWL:1EOT", ErrUnknownCommand},
		{"", ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.in))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, fault.Is(err, fault.Protocol))
			assert.Equal(t, CommandUnknown, got.Kind)
		})
	}
}

func TestCommandMarshal(t *testing.T) {
	for _, c := range []Command{
		StateOverride(flight.Parachute),
		{Kind: CommandImageSave},
		{Kind: CommandImageTransmit},
		{Kind: CommandImageShutdown},
	} {
		got, err := ParseCommand(c.Marshal())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	assert.Equal(t, "CMD:STATE:4", string(StateOverride(flight.Parachute).Marshal()))
	assert.Nil(t, Command{}.Marshal())
}
