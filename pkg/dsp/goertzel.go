package dsp

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/itohio/daqcore/pkg/acq"
)

// GoertzelConfig describes the measured channel and the target bin.
type GoertzelConfig struct {
	// ADCResolution is the full scale ADC count, e.g. 4096.
	ADCResolution float32
	// VRange is the ADC input range in volts.
	VRange float32
	// Gain of the analogue front end.
	Gain float32
	// Target is the frequency of interest in Hz.
	Target float32
	// SampleRate in Hz.
	SampleRate float32
	// N is the number of samples per magnitude. N·Target/SampleRate should be
	// integral.
	N int
	// VToUnit converts volts to the reported unit.
	VToUnit float32
}

// Goertzel computes the magnitude of a single DFT bin over blocks of N
// samples.
type Goertzel struct {
	k       int
	omega   float32
	sin     float32
	cos     float32
	coeff   float32
	n       int
	scaling float32
	input   float32

	q1, q2    float32
	count     int
	magnitude float32
}

// NewGoertzel prepares the constants for cfg.
func NewGoertzel(cfg GoertzelConfig) (*Goertzel, error) {
	if cfg.N <= 0 || cfg.SampleRate <= 0 || cfg.ADCResolution <= 0 || cfg.Gain == 0 || cfg.VRange == 0 {
		return nil, fmt.Errorf("%w: goertzel %+v", ErrParam, cfg)
	}
	n := float32(cfg.N)
	k := int(math32.Floor(0.5 + n*cfg.Target/cfg.SampleRate))
	omega := 2 * math32.Pi * float32(k) / n
	g := &Goertzel{
		k:       k,
		omega:   omega,
		sin:     math32.Sin(omega),
		cos:     math32.Cos(omega),
		n:       cfg.N,
		scaling: 2 / n,
		input:   cfg.VToUnit / (cfg.ADCResolution * cfg.Gain / cfg.VRange),
	}
	g.coeff = 2 * g.cos
	return g, nil
}

// Bin returns k, the DFT bin the filter is tuned to.
func (g *Goertzel) Bin() int { return g.k }

// Push feeds one raw sample. When it completes a block it returns the block
// magnitude and true, and starts the next block.
func (g *Goertzel) Push(x float32) (float32, bool) {
	q0 := g.coeff*g.q1 - g.q2 + x*g.input
	g.q2, g.q1 = g.q1, q0
	g.count++
	if g.count < g.n {
		return g.magnitude, false
	}

	re := g.q1 - g.q2*g.cos
	im := g.q2 * g.sin
	g.magnitude = math32.Sqrt(re*re+im*im) * g.scaling
	g.Reset()
	return g.magnitude, true
}

// Magnitude returns the last completed block magnitude.
func (g *Goertzel) Magnitude() float32 { return g.magnitude }

// Reset discards the running block.
func (g *Goertzel) Reset() {
	g.q1, g.q2 = 0, 0
	g.count = 0
}

// GoertzelFrame feeds channel c of f into g. Blocks may span frames. It
// reports whether at least one block completed and returns the latest
// magnitude.
func GoertzelFrame[T acq.Sample](g *Goertzel, f acq.Frame[T], c int) (float32, bool) {
	if f.Empty() || c < 0 || c >= f.Channels() {
		return g.magnitude, false
	}
	updated := false
	for s := 0; s < f.Samples(); s++ {
		if _, ok := g.Push(float32(f.At(s, c))); ok {
			updated = true
		}
	}
	return g.magnitude, updated
}
