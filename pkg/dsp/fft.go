package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/itohio/daqcore/pkg/acq"
)

// FFT is a forward real FFT of fixed length with its own scratch and output
// table. The table holds 2·n values: the real and imaginary part of every
// bin, negative frequencies included.
type FFT struct {
	n       int
	fft     *fourier.FFT
	scratch []float64
	coeff   []complex128
	table   []float64
}

// NewFFT allocates an FFT of length n.
func NewFFT(n int) (*FFT, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: fft length %d", ErrParam, n)
	}
	return &FFT{
		n:       n,
		fft:     fourier.NewFFT(n),
		scratch: make([]float64, n),
		coeff:   make([]complex128, n/2+1),
		table:   make([]float64, 2*n),
	}, nil
}

// Len returns n.
func (f *FFT) Len() int { return f.n }

// Transform computes the spectrum of seq, zero padded or truncated to n, and
// returns the output table. The table is reused by the next call.
func (f *FFT) Transform(seq []float64) []float64 {
	m := copy(f.scratch, seq)
	clear(f.scratch[m:])
	return f.run()
}

func (f *FFT) run() []float64 {
	f.coeff = f.fft.Coefficients(f.coeff, f.scratch)
	for k := 0; k < f.n; k++ {
		var v complex128
		if k < len(f.coeff) {
			v = f.coeff[k]
		} else {
			v = cmplx.Conj(f.coeff[f.n-k])
		}
		f.table[2*k] = real(v)
		f.table[2*k+1] = imag(v)
	}
	return f.table
}

// Magnitudes appends |X[k]| for k in [0, n/2] to dst, from the last table.
func (f *FFT) Magnitudes(dst []float64) []float64 {
	for k := 0; k <= f.n/2; k++ {
		dst = append(dst, math.Hypot(f.table[2*k], f.table[2*k+1]))
	}
	return dst
}

// FFTChannel transforms channel c of fr. An invalid channel transforms
// zeros.
func FFTChannel[T acq.Sample](f *FFT, fr acq.Frame[T], c int) []float64 {
	clear(f.scratch)
	if !fr.Empty() && c >= 0 && c < fr.Channels() {
		for s := 0; s < min(fr.Samples(), f.n); s++ {
			f.scratch[s] = float64(fr.At(s, c))
		}
	}
	return f.run()
}

// AbsMax returns the index and value of the element of table with the largest
// absolute value. With rejectEndpoints a maximum at the first or last index
// yields (0, 0).
func AbsMax(table []float64, rejectEndpoints bool) (int, float64) {
	if len(table) == 0 {
		return 0, 0
	}
	at, best := 0, math.Abs(table[0])
	for i, v := range table[1:] {
		if a := math.Abs(v); a > best {
			at, best = i+1, a
		}
	}
	if rejectEndpoints && (at == 0 || at == len(table)-1) {
		return 0, 0
	}
	return at, best
}
