package server

import (
	"sync"

	"github.com/standardbeagle/conch/command"
)

// DefaultRingSize is the message history capacity when the config does
// not say otherwise.
const DefaultRingSize = 256

// Ring is a fixed-capacity circular buffer of published messages. The
// history command serves from it. Safe for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []command.Message
	next int
	full bool
}

// NewRing returns a ring holding up to capacity messages. A capacity
// below 1 falls back to DefaultRingSize.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultRingSize
	}
	return &Ring{buf: make([]command.Message, capacity)}
}

// Add appends a message, evicting the oldest once full.
func (r *Ring) Add(msg command.Message) {
	r.mu.Lock()
	r.buf[r.next] = msg
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Len returns the number of messages held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Recent returns up to n messages, oldest first. n <= 0 means all.
func (r *Ring) Recent(n int) []command.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	start := 0
	if r.full {
		size = len(r.buf)
		start = r.next
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]command.Message, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
