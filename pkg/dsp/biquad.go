package dsp

import (
	"fmt"
	"math"
)

// Biquad is a second order IIR section with a0 normalised to 1, updated in
// direct form I.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64

	x [3]float64
	y [3]float64
}

type biquadParams struct {
	cos, alpha, scale float64
}

func newBiquadParams(ts, fc, bw float64) (biquadParams, error) {
	if ts <= 0 || fc <= 0 || bw <= 0 || fc-bw/2 <= 0 || fc >= 0.5/ts {
		return biquadParams{}, fmt.Errorf("%w: biquad ts=%g fc=%g bw=%g", ErrParam, ts, fc, bw)
	}
	w0 := 2 * math.Pi * fc * ts
	octaves := math.Log2((fc + bw/2) / (fc - bw/2))
	sin := math.Sin(w0)
	alpha := sin * math.Sinh(0.5*math.Ln2*octaves*w0/sin)
	return biquadParams{
		cos:   math.Cos(w0),
		alpha: alpha,
		scale: 1 / (1 + alpha),
	}, nil
}

// NewBandPass returns a constant 0 dB peak band-pass around fc with bandwidth
// bw, both in Hz, for sample period ts in seconds.
func NewBandPass(ts, fc, bw float64) (*Biquad, error) {
	p, err := newBiquadParams(ts, fc, bw)
	if err != nil {
		return nil, err
	}
	return &Biquad{
		B0: p.alpha * p.scale,
		B1: 0,
		B2: -p.alpha * p.scale,
		A1: -2 * p.cos * p.scale,
		A2: (1 - p.alpha) * p.scale,
	}, nil
}

// NewBandStop returns a band-stop around fc with bandwidth bw.
func NewBandStop(ts, fc, bw float64) (*Biquad, error) {
	p, err := newBiquadParams(ts, fc, bw)
	if err != nil {
		return nil, err
	}
	return &Biquad{
		B0: p.scale,
		B1: -2 * p.cos * p.scale,
		B2: p.scale,
		A1: -2 * p.cos * p.scale,
		A2: (1 - p.alpha) * p.scale,
	}, nil
}

// NewLowPass returns a low-pass with corner fc. bw sets the resonance.
func NewLowPass(ts, fc, bw float64) (*Biquad, error) {
	p, err := newBiquadParams(ts, fc, bw)
	if err != nil {
		return nil, err
	}
	k := (1 - p.cos) * p.scale
	return &Biquad{
		B0: k / 2,
		B1: k,
		B2: k / 2,
		A1: -2 * p.cos * p.scale,
		A2: (1 - p.alpha) * p.scale,
	}, nil
}

// Update feeds one sample and returns the filter output.
func (b *Biquad) Update(x float64) float64 {
	b.x[2], b.x[1], b.x[0] = b.x[1], b.x[0], x
	b.y[2], b.y[1] = b.y[1], b.y[0]
	b.y[0] = b.B0*b.x[0] + b.B1*b.x[1] + b.B2*b.x[2] - b.A1*b.y[1] - b.A2*b.y[2]
	return b.y[0]
}

// Output returns the last output.
func (b *Biquad) Output() float64 { return b.y[0] }

// Reset zeroes the delay lines.
func (b *Biquad) Reset() {
	b.x = [3]float64{}
	b.y = [3]float64{}
}
