// Package dsp implements the signal processing primitives that run on
// acquisition frames: windowing, IIR filters, Goertzel, a real FFT wrapper,
// array statistics and a moving average over a circular buffer.
//
// Filters are single-owner state machines. None of them allocate or log on
// the update path.
package dsp

import "errors"

var (
	// ErrEmpty is returned by array statistics over zero elements.
	ErrEmpty = errors.New("dsp: empty input")
	// ErrWindow is returned for a circular buffer window of zero or more than
	// the buffer length.
	ErrWindow = errors.New("dsp: invalid window")
	// ErrParam is returned by filter constructors for unusable parameters.
	ErrParam = errors.New("dsp: invalid parameter")
)

// Float is the element type of the array statistics.
type Float interface {
	~float32 | ~float64
}

// Number is anything a window can be applied to.
type Number interface {
	~int16 | ~int32 | ~float32 | ~float64
}
