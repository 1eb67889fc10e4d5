package app

import (
	"strings"
	"sync"
)

const defaultLogLines = 100

// LogBuffer keeps the most recent log lines for the log view. It is an
// io.Writer so that a slog handler can write to it.
type LogBuffer struct {
	mu       sync.RWMutex
	lines    []string
	n        int
	onChange func()
}

func NewLogBuffer(n int) *LogBuffer {
	if n <= 0 {
		n = defaultLogLines
	}
	return &LogBuffer{
		lines: make([]string, 0, n),
		n:     n,
	}
}

func (l *LogBuffer) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		l.AddLine(line)
	}
	return len(p), nil
}

// AddLine appends a line, evicting the oldest once the buffer is full
func (l *LogBuffer) AddLine(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	if len(l.lines) > l.n {
		l.lines = l.lines[len(l.lines)-l.n:]
	}
	cb := l.onChange
	l.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Lines returns up to n of the most recent lines, oldest first
func (l *LogBuffer) Lines(n int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	start := 0
	if len(l.lines) > n {
		start = len(l.lines) - n
	}
	return append([]string(nil), l.lines[start:]...)
}

// OnChange registers a callback run after every appended line
func (l *LogBuffer) OnChange(cb func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = cb
}
