// Package fault classifies the failures the flight computer and the ground
// station can hit at runtime. A fault of any kind except FatalInit is logged
// and contained within the cycle that produced it.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a class of fault
type Kind uint8

const (
	// Sensor is a failed or stale read from an inertial, barometric or range sensor
	Sensor Kind = iota + 1

	// Link is a radio transmit failure or missing acknowledgement
	Link

	// Protocol is a malformed, truncated or unrecognised frame
	Protocol

	// Saturation is a full relay queue that dropped a message
	Saturation

	// FatalInit is a peripheral that was not recognised at boot
	FatalInit
)

func (k Kind) String() string {
	switch k {
	case Sensor:
		return "sensor"
	case Link:
		return "link"
	case Protocol:
		return "protocol"
	case Saturation:
		return "saturation"
	case FatalInit:
		return "fatal-init"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is a fault of a known kind raised by an operation
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err as a fault of kind k raised by op
func New(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s fault: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s fault: %s: %s", e.Kind, e.Op, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether any error in err's chain is a fault of kind k
func Is(err error, k Kind) bool {
	var f *Error
	for err != nil {
		if !errors.As(err, &f) {
			return false
		}
		if f.Kind == k {
			return true
		}
		err = f.Err
	}
	return false
}

// KindOf returns the kind of the outermost fault in err's chain, or zero
func KindOf(err error) Kind {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
