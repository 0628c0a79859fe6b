// Package sample converts the board's status ADC channels to physical units
// and keeps the supply errors of the status registry up to date.
package sample

import (
	"github.com/itohio/daqcore/pkg/acq"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/status"
)

// Sample holds the supply measurements of one acquisition half.
type Sample struct {
	Temperature float64 // °C
	Voltage     float64 // Supply voltage (V)
	Current     float64 // Supply current (A)
}

// Registry receives measurements and supply errors. status.Registry
// implements it.
type Registry interface {
	SetTemperature(v float32)
	SetVoltage(v float32)
	SetCurrent(v float32)
	UpdateError(f status.Field, on bool, errorBits status.Field)
}

// Converter turns ADC counts into a Sample.
type Converter struct {
	cfg  config.MeasurementConfig
	full float64
}

// NewConverter creates a converter for the given measurement channels.
func NewConverter(cfg config.MeasurementConfig) *Converter {
	return &Converter{
		cfg:  cfg,
		full: float64(uint32(1)<<cfg.Resolution - 1),
	}
}

// Config returns the converter's configuration.
func (c *Converter) Config() config.MeasurementConfig {
	return c.cfg
}

// Convert converts the mean ADC count of every enabled status channel of f.
// Disabled channels read zero.
func Convert[T acq.Sample](c *Converter, f acq.Frame[T]) Sample {
	var s Sample
	if ch := c.cfg.TemperatureChannel; ch >= 0 {
		s.Temperature = c.temperature(f.Mean(ch))
	}
	if ch := c.cfg.VoltageChannel; ch >= 0 {
		s.Voltage = c.voltage(f.Mean(ch))
	}
	if ch := c.cfg.CurrentChannel; ch >= 0 {
		s.Current = c.current(f.Mean(ch))
	}
	return s
}

func (c *Converter) temperature(adc float64) float64 {
	v := adcToVoltage(adc, c.cfg.VRef, c.full)
	return (v-c.cfg.TempV25)/c.cfg.TempSlope + 25
}

func (c *Converter) voltage(adc float64) float64 {
	return voltageDivider(adcToVoltage(adc, c.cfg.VRef, c.full), c.cfg.R1, c.cfg.R2)
}

func (c *Converter) current(adc float64) float64 {
	return adcToVoltage(adc, c.cfg.VRef, c.full) / (c.cfg.ShuntGain * c.cfg.Shunt)
}

// Counts returns the ADC counts at which the status channels read s.
func (c *Converter) Counts(s Sample) (temperature, voltage, current float64) {
	temperature = voltageToADC((s.Temperature-25)*c.cfg.TempSlope+c.cfg.TempV25, c.cfg.VRef, c.full)
	voltage = voltageToADC(s.Voltage*c.cfg.R2/(c.cfg.R1+c.cfg.R2), c.cfg.VRef, c.full)
	current = voltageToADC(s.Current*c.cfg.ShuntGain*c.cfg.Shunt, c.cfg.VRef, c.full)
	return temperature, voltage, current
}

// Apply publishes s to r and raises or clears the supply errors against the
// configured limits. A zero limit is not checked.
func (c *Converter) Apply(r Registry, s Sample) {
	r.SetTemperature(float32(s.Temperature))
	r.SetVoltage(float32(s.Voltage))
	r.SetCurrent(float32(s.Current))

	lim := c.cfg
	if lim.TemperatureChannel >= 0 {
		check(r, status.OverTemperature, lim.MaxTemperature != 0 && s.Temperature > lim.MaxTemperature)
	}
	if lim.VoltageChannel >= 0 {
		check(r, status.UnderVoltage, lim.MinVoltage != 0 && s.Voltage < lim.MinVoltage)
		check(r, status.OverVoltage, lim.MaxVoltage != 0 && s.Voltage > lim.MaxVoltage)
	}
	if lim.CurrentChannel >= 0 {
		check(r, status.OverCurrent, lim.MaxCurrent != 0 && s.Current > lim.MaxCurrent)
	}
}

func check(r Registry, f status.Field, on bool) {
	r.UpdateError(f, on, f)
}

// adcToVoltage converts an ADC reading to voltage.
func adcToVoltage(adc, vref, full float64) float64 {
	return (adc / full) * vref
}

func voltageToADC(v, vref, full float64) float64 {
	return v / vref * full
}

// voltageDivider calculates the input voltage from the measured output voltage.
// Formula: V_in = V_out * ((R1 + R2) / R2)
func voltageDivider(vout float64, r1, r2 float64) float64 {
	return vout * ((r1 + r2) / r2)
}
