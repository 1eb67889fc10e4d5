// Package auxlink frames the serial link to the auxiliary computer that
// runs the camera and the GPS receiver. Every burst on the link starts with
// a one-byte tag.
package auxlink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roman-kulish/rocket-telemetry/internal/fault"
)

const (
	// TagImage marks a binary image chunk
	TagImage byte = 'I'

	// TagGPS marks comma-delimited GPS text
	TagGPS byte = 'G'
)

var (
	ErrEmpty      = errors.New("empty message")
	ErrUnknownTag = errors.New("unknown tag")
)

// Message is one tagged burst
type Message struct {
	Tag     byte
	Payload []byte
}

// Parse splits msg into its tag and payload
func Parse(msg []byte) (Message, error) {
	if len(msg) == 0 {
		return Message{}, fault.New(fault.Protocol, "parse aux message", ErrEmpty)
	}

	switch msg[0] {
	case TagImage, TagGPS:
		return Message{Tag: msg[0], Payload: msg[1:]}, nil
	default:
		return Message{}, fault.New(fault.Protocol, "parse aux message", fmt.Errorf("%w: %q", ErrUnknownTag, msg[0]))
	}
}

// Request is an instruction for the auxiliary computer
type Request uint32

const (
	RequestNone Request = iota
	RequestSave
	RequestTransmit
	RequestShutdown
)

func (r Request) String() string {
	switch r {
	case RequestSave:
		return "save"
	case RequestTransmit:
		return "transmit"
	case RequestShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// instruction is the byte written to the auxiliary computer
func (r Request) instruction() byte {
	switch r {
	case RequestTransmit:
		return 't'
	case RequestShutdown:
		return 's'
	default:
		return 'c'
	}
}

// RequestSlot holds at most one pending request. A later Set replaces an
// unconsumed request; Take consumes it.
type RequestSlot struct {
	v atomic.Uint32
}

func (s *RequestSlot) Set(r Request) {
	s.v.Store(uint32(r))
}

func (s *RequestSlot) Take() Request {
	return Request(s.v.Swap(uint32(RequestNone)))
}

const (
	StateIdle     = "IDLE"
	StateSave     = "SAVE"
	StateTransmit = "TX"
	StateOff      = "OFF"

	maxGPSLength = 96
)

// Status is the auxiliary computer status embedded in outgoing telemetry.
// It has its own lock, independent of the radio.
type Status struct {
	mu      sync.Mutex
	state   string
	partial []byte
	gps     string
}

func NewStatus() *Status {
	return &Status{state: StateIdle}
}

func (s *Status) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// AppendGPS accumulates GPS text. A newline completes the current sentence,
// which then replaces the previous one.
func (s *Status) AppendGPS(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range p {
		switch c {
		case '\n':
			s.complete()
		case '\r', ':':
		default:
			if len(s.partial) < maxGPSLength {
				s.partial = append(s.partial, c)
			}
		}
	}
}

// EndGPS completes a sentence cut short by a new tag or an idle link
func (s *Status) EndGPS() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete()
}

func (s *Status) complete() {
	if len(s.partial) > 0 {
		s.gps = string(s.partial)
		s.partial = s.partial[:0]
	}
}

// GPS returns the last complete GPS sentence
func (s *Status) GPS() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gps
}

// String renders the status as STATE or STATE,<gps fields>
func (s *Status) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gps == "" {
		return s.state
	}
	return s.state + "," + s.gps
}
