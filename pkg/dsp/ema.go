package dsp

import "github.com/chewxy/math32"

// EMA is a first order exponential moving average low-pass.
type EMA struct {
	alpha float32
	y     float32
}

// NewEMA returns an EMA with corner frequency fc for sample rate fs.
func NewEMA(fc, fs float32) *EMA {
	w := math32.Pi * fc / (fs / 2)
	c := math32.Cos(w)
	return NewEMAAlpha(c - 1 + math32.Sqrt(c*c-4*c+3))
}

// NewEMAAlpha returns an EMA with smoothing factor alpha, clamped to [0, 1].
func NewEMAAlpha(alpha float32) *EMA {
	switch {
	case alpha < 0 || math32.IsNaN(alpha):
		alpha = 0
	case alpha > 1:
		alpha = 1
	}
	return &EMA{alpha: alpha}
}

// Alpha returns the smoothing factor.
func (e *EMA) Alpha() float32 { return e.alpha }

// Update feeds x and returns the new output.
func (e *EMA) Update(x float32) float32 {
	e.y = e.alpha*x + (1-e.alpha)*e.y
	return e.y
}

// Value returns the last output.
func (e *EMA) Value() float32 { return e.y }

// Reset sets the output back to 0.
func (e *EMA) Reset() { e.y = 0 }
