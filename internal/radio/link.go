// Package radio arbitrates the half-duplex radio shared by the periodic
// transmit task and the receive task.
package radio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData is returned by Link.Receive when nothing arrived within the timeout
	ErrNoData = errors.New("no data")

	// ErrYield is returned by Arbiter.Poll when a transmit is waiting for the radio
	ErrYield = errors.New("radio yielded to transmit")
)

// Link is a half-duplex radio transceiver driver. Implementations are not
// required to be reentrant: the Arbiter serialises every call.
type Link interface {
	// Send transmits p and blocks until the module reports completion
	Send(ctx context.Context, p []byte) error

	// Receive returns the next packet, or ErrNoData when none arrived within timeout
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)

	// LostPackets returns the running count of packets the module failed to deliver
	LostPackets() int
}

// SignalReporter is implemented by links that measure the quality of the
// last received packet
type SignalReporter interface {
	Signal() (rssi, snr int)
}
