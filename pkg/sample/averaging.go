package sample

import "github.com/itohio/daqcore/pkg/dsp"

// Averager smooths consecutive Samples over a fixed number of halves.
type Averager struct {
	temperature *dsp.MovingAverage
	voltage     *dsp.MovingAverage
	current     *dsp.MovingAverage
	primed      bool
}

// NewAverager creates an averager over window Samples. A window below one
// is treated as one, which disables averaging.
func NewAverager(window int) *Averager {
	if window <= 0 {
		window = 1
	}
	return &Averager{
		temperature: dsp.NewMovingAverage(make([]float32, window)),
		voltage:     dsp.NewMovingAverage(make([]float32, window)),
		current:     dsp.NewMovingAverage(make([]float32, window)),
	}
}

// Push adds s and returns the average of the window. The first Sample fills
// the whole window so the average does not ramp up from zero.
func (a *Averager) Push(s Sample) Sample {
	n := 1
	if !a.primed {
		n = a.voltage.Window().Len()
		a.primed = true
	}
	for range n {
		a.temperature.Push(float32(s.Temperature))
		a.voltage.Push(float32(s.Voltage))
		a.current.Push(float32(s.Current))
	}
	return a.Value()
}

// Value returns the current average.
func (a *Averager) Value() Sample {
	return Sample{
		Temperature: float64(a.temperature.Mean()),
		Voltage:     float64(a.voltage.Mean()),
		Current:     float64(a.current.Mean()),
	}
}

// Noise returns the standard deviation of the supply voltage over the window.
func (a *Averager) Noise() float64 {
	return float64(a.voltage.StdDeviation())
}
