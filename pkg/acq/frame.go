package acq

import (
	"math"
	"math/bits"
)

// Frame is one half of the acquisition ring: S samples of C channel-interleaved
// elements. The element of sample s on channel c is at s·C + c.
//
// All accessors are total. On an empty Frame or an out-of-range channel they
// return zero.
type Frame[T Sample] struct {
	data     []T
	channels int
	samples  int
}

// Window is an inclusive range of sample indices.
type Window struct {
	Begin int
	End   int
}

// NewFrame views data as samples rows of channels elements. A data slice
// shorter than channels·samples yields an empty Frame.
func NewFrame[T Sample](data []T, channels, samples int) Frame[T] {
	if channels <= 0 || samples <= 0 || len(data) < channels*samples {
		return Frame[T]{}
	}
	return Frame[T]{data: data[:channels*samples], channels: channels, samples: samples}
}

// Data returns the underlying elements.
func (f Frame[T]) Data() []T { return f.data }

// Channels returns C.
func (f Frame[T]) Channels() int { return f.channels }

// Samples returns S.
func (f Frame[T]) Samples() int { return f.samples }

// Empty reports whether the frame holds no data.
func (f Frame[T]) Empty() bool { return f.data == nil }

// At returns the element of sample s on channel c.
func (f Frame[T]) At(s, c int) T {
	return f.data[s*f.channels+c]
}

// Channel copies channel c into dst, growing it as needed.
func (f Frame[T]) Channel(dst []T, c int) []T {
	dst = dst[:0]
	if !f.valid(c) {
		return dst
	}
	for i := c; i < len(f.data); i += f.channels {
		dst = append(dst, f.data[i])
	}
	return dst
}

func (f Frame[T]) valid(c int) bool {
	return f.data != nil && c >= 0 && c < f.channels
}

func (f Frame[T]) validWindow(c int, w Window) bool {
	return f.valid(c) && w.Begin >= 0 && w.Begin <= w.End && w.End < f.samples
}

func (f Frame[T]) sum(c, begin, end int) int64 {
	var sum int64
	for i := begin*f.channels + c; i <= end*f.channels+c; i += f.channels {
		sum += int64(f.data[i])
	}
	return sum
}

// sumSquares accumulates x² in 128 bits so full-scale 32-bit samples cannot
// overflow.
func (f Frame[T]) sumSquares(c, begin, end int) float64 {
	var hi, lo uint64
	for i := begin*f.channels + c; i <= end*f.channels+c; i += f.channels {
		x := int64(f.data[i])
		var carry uint64
		lo, carry = bits.Add64(lo, uint64(x*x), 0)
		hi += carry
	}
	return float64(hi)*(1<<64) + float64(lo)
}

// Mean returns Σx/S of channel c.
func (f Frame[T]) Mean(c int) float64 {
	if !f.valid(c) {
		return 0
	}
	return float64(f.sum(c, 0, f.samples-1)) / float64(f.samples)
}

// MeanLim returns the mean of channel c over the inclusive window w, or 0 when
// w is degenerate (Begin == End) or out of range.
func (f Frame[T]) MeanLim(c int, w Window) float64 {
	if w.Begin == w.End || !f.validWindow(c, w) {
		return 0
	}
	return float64(f.sum(c, w.Begin, w.End)) / float64(w.End-w.Begin+1)
}

// MeanBitShift returns (Σx) >> k. The caller guarantees S = 2^k.
func (f Frame[T]) MeanBitShift(c int, k uint) int64 {
	if !f.valid(c) {
		return 0
	}
	return f.sum(c, 0, f.samples-1) >> k
}

// AbsMean returns Σ|x|/S of channel c.
func (f Frame[T]) AbsMean(c int) float64 {
	if !f.valid(c) {
		return 0
	}
	var sum int64
	for i := c; i < len(f.data); i += f.channels {
		x := int64(f.data[i])
		if x < 0 {
			x = -x
		}
		sum += x
	}
	return float64(sum) / float64(f.samples)
}

// RMS returns √(Σx²/S) of channel c.
func (f Frame[T]) RMS(c int) float64 {
	if !f.valid(c) {
		return 0
	}
	return math.Sqrt(f.sumSquares(c, 0, f.samples-1) / float64(f.samples))
}

// TrueRMS returns the RMS of channel c over the inclusive window w.
func (f Frame[T]) TrueRMS(c int, w Window) float64 {
	if !f.validWindow(c, w) {
		return 0
	}
	return math.Sqrt(f.sumSquares(c, w.Begin, w.End) / float64(w.End-w.Begin+1))
}

// Max returns the largest element of channel c and its sample index. Ties
// resolve to the first occurrence.
func (f Frame[T]) Max(c int) (T, int) {
	if !f.valid(c) {
		return 0, 0
	}
	best, at := f.data[c], 0
	for s := 1; s < f.samples; s++ {
		if x := f.data[s*f.channels+c]; x > best {
			best, at = x, s
		}
	}
	return best, at
}

// Min returns the smallest element of channel c and its sample index. Ties
// resolve to the first occurrence.
func (f Frame[T]) Min(c int) (T, int) {
	if !f.valid(c) {
		return 0, 0
	}
	best, at := f.data[c], 0
	for s := 1; s < f.samples; s++ {
		if x := f.data[s*f.channels+c]; x < best {
			best, at = x, s
		}
	}
	return best, at
}

// SetOffset adds o to every element of channel c in place. Results wrap on
// overflow of T.
func (f Frame[T]) SetOffset(c int, o T) {
	if !f.valid(c) {
		return
	}
	for i := c; i < len(f.data); i += f.channels {
		f.data[i] += o
	}
}

// CMAAverage runs a cumulative moving average with divisor k+1 over channel c,
// replacing each element by the running average, and returns the final
// average. Division truncates toward zero.
func (f Frame[T]) CMAAverage(c int, cma int64, k int) int64 {
	if !f.valid(c) || k < 0 {
		return 0
	}
	div := int64(k) + 1
	for i := c; i < len(f.data); i += f.channels {
		cma += (int64(f.data[i]) - cma) / div
		f.data[i] = T(cma)
	}
	return cma
}
