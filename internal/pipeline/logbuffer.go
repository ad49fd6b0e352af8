package pipeline

import (
	"bytes"
	"sync"
)

// LogBuffer is a bounded, concurrency-safe ring of recent log lines. Wire it
// as an extra slog output for a run; on station failure the engine attaches
// the last lines to the failing step so the operator sees where and why.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
	part  bytes.Buffer // trailing fragment without a newline yet
}

// NewLogBuffer creates a buffer keeping at most max lines.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 200
	}
	return &LogBuffer{max: max}
}

// Write implements io.Writer, splitting input into lines.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.part.Write(p)
	for {
		raw := b.part.Bytes()
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			break
		}
		line := string(raw[:i])
		b.part.Next(i + 1)
		if line == "" {
			continue
		}
		b.lines = append(b.lines, line)
		if len(b.lines) > b.max {
			b.lines = b.lines[len(b.lines)-b.max:]
		}
	}
	return len(p), nil
}

// Last returns up to n most recent lines, oldest first.
func (b *LogBuffer) Last(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || len(b.lines) == 0 {
		return nil
	}
	if n > len(b.lines) {
		n = len(b.lines)
	}
	out := make([]string, n)
	copy(out, b.lines[len(b.lines)-n:])
	return out
}
