// Package transport implements the board's byte transport and the host side
// serial link that talks to it.
package transport

import (
	"errors"
	"math/bits"
	"sync/atomic"
)

// ErrEmpty is returned by ReadByte when no byte is available.
var ErrEmpty = errors.New("transport: no data")

// Ring is a single-producer single-consumer byte ring. One goroutine (or
// interrupt) may call Put while another calls ReadByte, Get or Flush.
type Ring struct {
	buf  []byte
	mask uint32

	// head and tail run freely and wrap; head-tail is the fill level.
	head atomic.Uint32
	tail atomic.Uint32
}

// NewRing returns a ring holding size bytes, rounded up to a power of two.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	size = 1 << bits.Len(uint(size-1))
	return &Ring{buf: make([]byte, size), mask: uint32(size - 1)}
}

// Cap returns the capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Free returns the space left.
func (r *Ring) Free() int { return r.Cap() - r.Len() }

// Put appends as much of p as fits and returns the count. Producer side.
func (r *Ring) Put(p []byte) int {
	head := r.head.Load()
	n := min(len(p), len(r.buf)-int(head-r.tail.Load()))
	for i := 0; i < n; i++ {
		r.buf[(head+uint32(i))&r.mask] = p[i]
	}
	r.head.Store(head + uint32(n))
	return n
}

// ReadByte removes the oldest byte. Consumer side.
func (r *Ring) ReadByte() (byte, error) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, ErrEmpty
	}
	b := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return b, nil
}

// Get moves up to len(p) bytes into p and returns the count. Consumer side.
func (r *Ring) Get(p []byte) int {
	tail := r.tail.Load()
	n := min(len(p), int(r.head.Load()-tail))
	for i := 0; i < n; i++ {
		p[i] = r.buf[(tail+uint32(i))&r.mask]
	}
	r.tail.Store(tail + uint32(n))
	return n
}

// Flush drops everything buffered. Consumer side.
func (r *Ring) Flush() {
	r.tail.Store(r.head.Load())
}
