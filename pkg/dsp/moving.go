package dsp

import "github.com/chewxy/math32"

// MovingAverage keeps the mean and sample variance of the last L pushed
// values, updated in O(1) per push. The running sums are rebuilt from the
// window each time the write index wraps, so rounding does not accumulate.
type MovingAverage struct {
	cb     *CircularBuffer
	sum    float64
	varSum float64
	mean   float64
}

// NewMovingAverage uses buf, which it zeroes, as the window.
func NewMovingAverage(buf []float32) *MovingAverage {
	return &MovingAverage{cb: NewCircularBuffer(buf)}
}

// Push adds x, evicting the oldest value.
func (m *MovingAverage) Push(x float32) {
	l := m.cb.Len()
	if l == 0 {
		return
	}
	old := m.cb.Push(x)
	if m.cb.i == 0 {
		m.reseed()
		return
	}
	xf, of := float64(x), float64(old)
	m.sum += xf - of
	mean := m.sum / float64(l)
	m.varSum += (xf + of - m.mean - mean) * (xf - of)
	m.mean = mean
}

func (m *MovingAverage) reseed() {
	var sum float64
	for _, x := range m.cb.buf {
		sum += float64(x)
	}
	mean := sum / float64(len(m.cb.buf))
	var ss float64
	for _, x := range m.cb.buf {
		d := float64(x) - mean
		ss += d * d
	}
	m.sum, m.mean, m.varSum = sum, mean, ss
}

// Mean returns the window mean.
func (m *MovingAverage) Mean() float32 { return float32(m.mean) }

// Variance returns the Bessel corrected window variance, never below zero.
func (m *MovingAverage) Variance() float32 {
	l := m.cb.Len()
	if l < 2 || m.varSum <= 0 {
		return 0
	}
	return float32(m.varSum / float64(l-1))
}

// StdDeviation returns √Variance.
func (m *MovingAverage) StdDeviation() float32 {
	return math32.Sqrt(m.Variance())
}

// Window exposes the underlying buffer.
func (m *MovingAverage) Window() *CircularBuffer { return m.cb }
