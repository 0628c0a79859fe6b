package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settle(update func(float64) float64, x func(i int) float64, n int) (last float64, peak float64) {
	for i := 0; i < n; i++ {
		y := update(x(i))
		if i >= n-n/10 {
			peak = math.Max(peak, math.Abs(y))
		}
		last = y
	}
	return last, peak
}

func TestBiquad_DCGain(t *testing.T) {
	const ts, fc, bw = 1e-3, 100.0, 50.0
	one := func(int) float64 { return 1 }

	tests := []struct {
		name string
		ctor func(ts, fc, bw float64) (*Biquad, error)
		want float64
	}{
		{"low-pass", NewLowPass, 1},
		{"band-stop", NewBandStop, 1},
		{"band-pass", NewBandPass, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.ctor(ts, fc, bw)
			require.NoError(t, err)
			last, _ := settle(b.Update, one, 2000)
			assert.InDelta(t, tt.want, last, 1e-3)
			assert.Equal(t, last, b.Output())
		})
	}
}

func TestBiquad_CentreFrequency(t *testing.T) {
	const ts, fc, bw = 1e-4, 1000.0, 200.0
	tone := func(i int) float64 { return math.Cos(2 * math.Pi * fc * float64(i) * ts) }

	bp, err := NewBandPass(ts, fc, bw)
	require.NoError(t, err)
	_, peak := settle(bp.Update, tone, 20000)
	assert.InDelta(t, 1.0, peak, 0.02)

	bs, err := NewBandStop(ts, fc, bw)
	require.NoError(t, err)
	_, peak = settle(bs.Update, tone, 20000)
	assert.Less(t, peak, 0.02)

	bs.Reset()
	assert.Equal(t, 0.0, bs.Output())
}

func TestBiquad_InvalidParams(t *testing.T) {
	for _, p := range [][3]float64{
		{0, 100, 50},      // no sample period
		{1e-3, 20, 50},    // band reaches below 0 Hz
		{1e-3, 100, 0},    // no bandwidth
		{1e-3, 600, 50},   // above Nyquist
		{1e-3, -100, 50},  // negative centre
		{-1e-3, 100, 50},  // negative period
	} {
		_, err := NewLowPass(p[0], p[1], p[2])
		assert.ErrorIs(t, err, ErrParam, "%v", p)
		_, err = NewBandPass(p[0], p[1], p[2])
		assert.ErrorIs(t, err, ErrParam, "%v", p)
		_, err = NewBandStop(p[0], p[1], p[2])
		assert.ErrorIs(t, err, ErrParam, "%v", p)
	}
}

func TestEMA(t *testing.T) {
	e := NewEMA(2500, 10000)
	assert.InDelta(t, math.Sqrt(3)-1, float64(e.Alpha()), 1e-6)

	assert.Equal(t, float32(0), NewEMA(0, 10000).Alpha())
	assert.Equal(t, float32(1), NewEMAAlpha(1.5).Alpha())
	assert.Equal(t, float32(0), NewEMAAlpha(-0.5).Alpha())

	h := NewEMAAlpha(0.5)
	assert.Equal(t, float32(0), h.Value())
	assert.Equal(t, float32(2), h.Update(4))
	assert.Equal(t, float32(3), h.Update(4))
	assert.Equal(t, float32(3), h.Value())
	for i := 0; i < 64; i++ {
		h.Update(4)
	}
	assert.InDelta(t, 4.0, float64(h.Value()), 1e-6)
	h.Reset()
	assert.Equal(t, float32(0), h.Value())
}

func TestNotch(t *testing.T) {
	const fs = 10000.0
	n, err := NewNotch(50, 5, 1/fs)
	require.NoError(t, err)

	hum := func(i int) float64 { return math.Sin(2 * math.Pi * 50 * float64(i) / fs) }
	_, peak := settle(n.Update, hum, int(fs))
	assert.Less(t, peak, 0.01)

	n.Reset()
	assert.Equal(t, 0.0, n.Output())
	tone := func(i int) float64 { return math.Cos(2 * math.Pi * 1000 * float64(i) / fs) }
	_, peak = settle(n.Update, tone, int(fs))
	assert.InDelta(t, 1.0, peak, 0.01)

	n.Reset()
	last, _ := settle(n.Update, func(int) float64 { return 3 }, int(fs))
	assert.InDelta(t, 3.0, last, 1e-5, "unity DC gain")
}

func TestNotch_InvalidParams(t *testing.T) {
	_, err := NewNotch(50, 5, 0)
	assert.ErrorIs(t, err, ErrParam)
	_, err = NewNotch(6000, 5, 1e-4)
	assert.ErrorIs(t, err, ErrParam)
	_, err = NewNotch(50, 0, 1e-4)
	assert.ErrorIs(t, err, ErrParam)
}
