// Package udp carries radio packets in UDP datagrams, for bench runs of the
// flight computer and the ground station without radio hardware.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
	"github.com/roman-kulish/rocket-telemetry/internal/radio"
)

const maxDatagram = 4096

// Link is a radio.Link over a UDP socket talking to a single peer
type Link struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	buf  []byte
	lost atomic.Int64
}

// Listen binds local and sends to peer, both in host:port form
func Listen(local, peer string) (*Link, error) {
	laddr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, fmt.Errorf("resolving local address: %w", err)
	}

	raddr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return nil, fmt.Errorf("resolving peer address: %w", err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fault.New(fault.FatalInit, "udp listen", err)
	}

	return &Link{conn: conn, peer: raddr, buf: make([]byte, maxDatagram)}, nil
}

// LocalAddr returns the bound address
func (l *Link) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Link) Send(ctx context.Context, p []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = l.conn.SetWriteDeadline(deadline)
	} else {
		_ = l.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := l.conn.WriteToUDP(p, l.peer); err != nil {
		l.lost.Add(1)
		return fault.New(fault.Link, "udp send", err)
	}
	return nil
}

func (l *Link) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := l.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fault.New(fault.Link, "udp receive", err)
	}

	n, _, err := l.conn.ReadFromUDP(l.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, radio.ErrNoData
		}
		return nil, fault.New(fault.Link, "udp receive", err)
	}

	msg := make([]byte, n)
	copy(msg, l.buf[:n])
	return msg, nil
}

func (l *Link) LostPackets() int {
	return int(l.lost.Load())
}

func (l *Link) Close() error {
	return l.conn.Close()
}
