package dsp

import (
	"fmt"
	"math"
)

// Notch is a second order notch derived from the pre-warped bilinear
// transform of the analogue notch s²+ω₀² / s²+Bs+ω₀².
type Notch struct {
	alpha float64
	beta  float64

	x [3]float64
	y [3]float64
}

// NewNotch returns a notch at fc with the given width, both in Hz, for sample
// period ts in seconds.
func NewNotch(fc, width, ts float64) (*Notch, error) {
	if ts <= 0 || fc <= 0 || width <= 0 || fc >= 0.5/ts {
		return nil, fmt.Errorf("%w: notch fc=%g width=%g ts=%g", ErrParam, fc, width, ts)
	}
	w0 := 2 * math.Pi * fc
	warped := (2 / ts) * math.Tan(0.5*w0*ts)
	return &Notch{
		alpha: 4 + warped*warped*ts*ts,
		beta:  2 * (2 * math.Pi * width) * ts,
	}, nil
}

// Update feeds one sample and returns the filter output.
func (n *Notch) Update(x float64) float64 {
	n.x[2], n.x[1], n.x[0] = n.x[1], n.x[0], x
	n.y[2], n.y[1] = n.y[1], n.y[0]

	a, b := n.alpha, n.beta
	n.y[0] = (a*n.x[0] + 2*n.x[1]*(a-8) + a*n.x[2] - 2*n.y[1]*(a-8) - n.y[2]*(a-b)) / (a + b)
	return n.y[0]
}

// Output returns the last output.
func (n *Notch) Output() float64 { return n.y[0] }

// Reset zeroes the delay lines and the output.
func (n *Notch) Reset() {
	n.x = [3]float64{}
	n.y = [3]float64{}
}
