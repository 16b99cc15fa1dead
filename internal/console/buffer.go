// Package console holds the in-memory console machinery for one supervised
// server: a fixed-capacity ring buffer of recent output lines and a pattern
// classifier that turns raw lines into typed domain events.
package console

import (
	"sync"
	"time"
)

// Line is one captured console line.
type Line struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"` // stdout or stderr
	Text      string    `json:"text"`
}

// Buffer is a thread-safe ring buffer of recent console lines. Once full,
// appends silently evict the oldest line.
type Buffer struct {
	mu    sync.RWMutex
	lines []Line
	size  int
	index int
	full  bool
}

// NewBuffer creates a buffer holding up to size lines.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 2000
	}
	return &Buffer{
		lines: make([]Line, size),
		size:  size,
	}
}

// Append adds a line. O(1), never blocks beyond the internal mutex.
func (b *Buffer) Append(line Line) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.index] = line
	b.index++
	if b.index >= b.size {
		b.index = 0
		b.full = true
	}
}

// Tail returns the last min(n, Len()) lines in chronological order without
// mutating the buffer.
func (b *Buffer) Tail(n int) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.index
	if b.full {
		count = b.size
	}
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}

	result := make([]Line, n)
	if !b.full || n <= b.index {
		copy(result, b.lines[b.index-n:b.index])
		return result
	}

	// Wrap: take the tail of the old region, then the new region.
	fromEnd := n - b.index
	copy(result, b.lines[b.size-fromEnd:])
	copy(result[fromEnd:], b.lines[:b.index])
	return result
}

// Len returns the number of lines currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.full {
		return b.size
	}
	return b.index
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return b.size
}
