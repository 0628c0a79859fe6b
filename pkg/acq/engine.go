// Package acq implements the continuous, double-buffered acquisition engine.
//
// A DMA controller fills a ring of 2·C·S samples in circular mode and raises
// an interrupt when each half completes. The interrupt handlers post the
// completed half into a single-element slot; the main loop drains the slot
// with Loop and hands the half to a consumer as a Frame. Reading a Frame is
// single-threaded: the consumer owns the half until the producer wraps around
// to it again, S/fs seconds later.
package acq

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrGeometry is returned by New for an inconsistent buffer geometry.
var ErrGeometry = errors.New("acq: invalid buffer geometry")

// Sample is the element type of the acquisition buffer.
type Sample interface {
	~int16 | ~int32
}

// Buffer names a half of the acquisition ring.
type Buffer int32

const (
	NotAvailable Buffer = iota
	First
	Second
)

func (b Buffer) String() string {
	switch b {
	case First:
		return "first"
	case Second:
		return "second"
	default:
		return "not-available"
	}
}

// DMA arms a circular transfer into buf, calling half when buf[:len/2] is
// complete and full when buf[len/2:] is. The callbacks run in interrupt
// context.
type DMA[T Sample] interface {
	StartCircular(buf []T, half, full func()) error
}

// Engine owns the sample ring.
type Engine[T Sample] struct {
	channels int
	samples  int
	buf      []T

	// active is the half the producer completed most recently.
	active atomic.Int32
	// slot carries completion events from the producer to Loop.
	slot atomic.Int32

	last Buffer
}

// New records the geometry of buf, which must hold exactly 2·channels·samples
// elements.
func New[T Sample](channels, samples int, buf []T) (*Engine[T], error) {
	if channels <= 0 || samples <= 0 {
		return nil, fmt.Errorf("%w: %d channels, %d samples", ErrGeometry, channels, samples)
	}
	if len(buf) != 2*channels*samples {
		return nil, fmt.Errorf("%w: buffer holds %d elements, want %d", ErrGeometry, len(buf), 2*channels*samples)
	}
	return &Engine[T]{
		channels: channels,
		samples:  samples,
		buf:      buf,
	}, nil
}

// Start arms dma for circular transfer into the ring.
func (e *Engine[T]) Start(dma DMA[T]) error {
	e.active.Store(int32(NotAvailable))
	e.slot.Store(int32(NotAvailable))
	e.last = NotAvailable
	if err := dma.StartCircular(e.buf, e.OnHalfComplete, e.OnFullComplete); err != nil {
		return fmt.Errorf("acq: could not start dma: %w", err)
	}
	return nil
}

// Channels returns C.
func (e *Engine[T]) Channels() int { return e.channels }

// Samples returns S, the samples per channel in one half.
func (e *Engine[T]) Samples() int { return e.samples }

// Buffer returns the whole ring.
func (e *Engine[T]) Buffer() []T { return e.buf }

// OnHalfComplete is the producer hook for the first half.
func (e *Engine[T]) OnHalfComplete() {
	e.active.Store(int32(First))
	e.slot.Store(int32(First))
}

// OnFullComplete is the producer hook for the second half.
func (e *Engine[T]) OnFullComplete() {
	e.active.Store(int32(Second))
	e.slot.Store(int32(Second))
}

// Active returns the half the producer completed most recently.
func (e *Engine[T]) Active() Buffer {
	return Buffer(e.active.Load())
}

// Last returns the half most recently handed to the consumer.
func (e *Engine[T]) Last() Buffer {
	return e.last
}

// Loop hands a newly completed half to cb and reports whether it did.
// It must be called at least once per half period; a completion that is not
// drained in time is replaced by the next one.
func (e *Engine[T]) Loop(cb func(Frame[T])) bool {
	ev := Buffer(e.slot.Swap(int32(NotAvailable)))
	if ev == NotAvailable {
		return false
	}
	e.last = ev
	cb(e.half(ev))
	return true
}

// Current returns the most recently completed half, or an empty Frame when
// no half has completed since Start.
func (e *Engine[T]) Current() Frame[T] {
	return e.half(e.Active())
}

func (e *Engine[T]) half(b Buffer) Frame[T] {
	n := e.channels * e.samples
	switch b {
	case First:
		return NewFrame(e.buf[:n], e.channels, e.samples)
	case Second:
		return NewFrame(e.buf[n:], e.channels, e.samples)
	default:
		return Frame[T]{}
	}
}
