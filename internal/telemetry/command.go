package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/flight"
)

const (
	cmdState         = "CMD:STATE:"
	cmdImageSave     = "CMD:IMAGE:"
	cmdImageTransmit = "CMD:TIMAGE:"
	cmdImageShutdown = "CMD:SIMAGE:"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPhase   = errors.New("invalid phase")
)

// CommandKind identifies an uplink command
type CommandKind uint8

const (
	CommandUnknown CommandKind = iota
	CommandStateOverride
	CommandImageSave
	CommandImageTransmit
	CommandImageShutdown
)

func (k CommandKind) String() string {
	switch k {
	case CommandStateOverride:
		return "state-override"
	case CommandImageSave:
		return "image-save"
	case CommandImageTransmit:
		return "image-transmit"
	case CommandImageShutdown:
		return "image-shutdown"
	default:
		return "unknown"
	}
}

// Command is an uplink command frame
type Command struct {
	Kind  CommandKind
	Phase flight.Phase // Target of a state override
}

// StateOverride returns a command forcing the flight phase to p
func StateOverride(p flight.Phase) Command {
	return Command{Kind: CommandStateOverride, Phase: p}
}

// Marshal renders the command as it is sent over the radio
func (c Command) Marshal() []byte {
	switch c.Kind {
	case CommandStateOverride:
		return []byte(cmdState + strconv.Itoa(int(c.Phase)))
	case CommandImageSave:
		return []byte(cmdImageSave)
	case CommandImageTransmit:
		return []byte(cmdImageTransmit)
	case CommandImageShutdown:
		return []byte(cmdImageShutdown)
	default:
		return nil
	}
}

// ParseCommand parses an uplink command. Out-of-range state overrides and
// unrecognised commands yield CommandUnknown and a protocol fault.
func ParseCommand(p []byte) (Command, error) {
	s := strings.TrimRight(string(p), "\x00\r\n ")

	if arg, ok := strings.CutPrefix(s, cmdState); ok {
		n, err := strconv.Atoi(strings.TrimSuffix(arg, ":"))
		if err != nil {
			return Command{}, fault.New(fault.Protocol, "parse command", fmt.Errorf("%w: %q", ErrInvalidPhase, arg))
		}
		phase, ok := flight.PhaseFromOrdinal(n)
		if !ok {
			return Command{}, fault.New(fault.Protocol, "parse command", fmt.Errorf("%w: %d", ErrInvalidPhase, n))
		}
		return StateOverride(phase), nil
	}

	switch strings.TrimSuffix(s, ":") + ":" {
	case cmdImageSave:
		return Command{Kind: CommandImageSave}, nil
	case cmdImageTransmit:
		return Command{Kind: CommandImageTransmit}, nil
	case cmdImageShutdown:
		return Command{Kind: CommandImageShutdown}, nil
	}

	return Command{}, fault.New(fault.Protocol, "parse command", fmt.Errorf("%w: %q", ErrUnknownCommand, s))
}
