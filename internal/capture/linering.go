// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"bytes"
	"sync"
)

const defaultRingLines = 50

// LineRing keeps the last lines written to it. It is safe for concurrent use
// and joins lines split across writes.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	full    bool
	partial []byte
}

// NewLineRing creates a LineRing holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = defaultRingLines
	}
	return &LineRing{lines: make([]string, capacity)}
}

func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := p
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.partial = append(r.partial, data...)
			break
		}
		line := append(r.partial, data[:i]...)
		r.partial = r.partial[:0]
		r.push(string(bytes.TrimRight(line, "\r")))
		data = data[i+1:]
	}
	return len(p), nil
}

func (r *LineRing) push(line string) {
	if line == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.head == 0 {
		r.full = true
	}
}

// Lines returns the retained lines oldest first, including an unterminated
// trailing line.
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	if r.full {
		out = append(out, r.lines[r.head:]...)
	}
	out = append(out, r.lines[:r.head]...)
	if len(r.partial) > 0 {
		out = append(out, string(r.partial))
	}
	return out
}
