package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/daqcore/pkg/acq"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/status"
)

func TestADCToVoltage(t *testing.T) {
	tests := []struct {
		name string
		adc  float64
		vref float64
		full float64
		want float64
	}{
		{name: "zero ADC", adc: 0, vref: 3.3, full: 4095, want: 0.0},
		{name: "max ADC", adc: 4095, vref: 3.3, full: 4095, want: 3.3},
		{name: "half ADC", adc: 2047, vref: 3.3, full: 4095, want: 1.65},
		{name: "quarter ADC", adc: 1024, vref: 3.3, full: 4095, want: 0.825},
		{name: "different VRef", adc: 2047, vref: 5.0, full: 4095, want: 2.5},
		{name: "16 bit", adc: 32767.5, vref: 2.5, full: 65535, want: 1.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adcToVoltage(tt.adc, tt.vref, tt.full)
			assert.InDelta(t, tt.want, got, 0.01, "adcToVoltage(%f, %f) = %f, want %f", tt.adc, tt.vref, got, tt.want)
		})
	}
}

func TestVoltageDivider(t *testing.T) {
	tests := []struct {
		name string
		vout float64
		r1   float64
		r2   float64
		want float64
	}{
		{name: "equal resistors", vout: 1.65, r1: 20000, r2: 20000, want: 3.3},
		{name: "unequal resistors", vout: 1.0, r1: 30000, r2: 10000, want: 4.0},
		{name: "no divider", vout: 2.2, r1: 0, r2: 10000, want: 2.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, voltageDivider(tt.vout, tt.r1, tt.r2), 1e-9)
		})
	}
}

// frame builds a two-sample frame of the default layout: a signal channel
// followed by temperature, voltage and current.
func frame(temp, volt, curr int16) acq.Frame[int16] {
	data := []int16{
		0, temp, volt, curr,
		100, temp, volt, curr,
	}
	return acq.NewFrame(data, 4, 2)
}

func TestConvert(t *testing.T) {
	c := NewConverter(config.Default().Measurement)

	s := Convert(c, frame(943, 2048, 1000))

	// 943·3.3/4095 = 0.759927 V on the sensor.
	assert.InDelta(t, 24.9707, s.Temperature, 1e-3)
	// 2048·3.3/4095 = 1.650432 V behind a 20k/10k divider.
	assert.InDelta(t, 4.951297, s.Voltage, 1e-5)
	// 1000·3.3/4095 = 0.805861 V over 0.1 Ω at gain 20.
	assert.InDelta(t, 0.402930, s.Current, 1e-5)
}

func TestConvert_DisabledChannels(t *testing.T) {
	cfg := config.Default().Measurement
	cfg.TemperatureChannel = -1
	cfg.CurrentChannel = -1
	c := NewConverter(cfg)

	s := Convert(c, frame(943, 2048, 1000))
	assert.Zero(t, s.Temperature)
	assert.Zero(t, s.Current)
	assert.NotZero(t, s.Voltage)
}

func TestConvert_EmptyFrame(t *testing.T) {
	cfg := config.Default().Measurement
	cfg.TempV25 = 0
	c := NewConverter(cfg)

	s := Convert(c, acq.Frame[int16]{})
	assert.Equal(t, Sample{Temperature: 25}, s)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   status.Field
	}{
		{"nominal", Sample{Temperature: 30, Voltage: 5, Current: 0.4}, 0},
		{"hot", Sample{Temperature: 90, Voltage: 5, Current: 0.4}, status.OverTemperature | status.Error},
		{"brown out", Sample{Temperature: 30, Voltage: 4.2, Current: 0.4}, status.UnderVoltage | status.Error},
		{"surge", Sample{Temperature: 30, Voltage: 5.8, Current: 0.4}, status.OverVoltage | status.Error},
		{"short", Sample{Temperature: 30, Voltage: 4.2, Current: 1.5}, status.UnderVoltage | status.OverCurrent | status.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := status.New()
			c := NewConverter(config.Default().Measurement)

			c.Apply(r, tt.sample)
			assert.Equal(t, tt.want, r.Status())
			assert.InDelta(t, tt.sample.Temperature, r.Temperature(), 1e-4)
			assert.InDelta(t, tt.sample.Voltage, r.Voltage(), 1e-4)
			assert.InDelta(t, tt.sample.Current, r.Current(), 1e-4)
		})
	}
}

func TestApply_Recovers(t *testing.T) {
	r := status.New()
	c := NewConverter(config.Default().Measurement)

	c.Apply(r, Sample{Temperature: 30, Voltage: 4, Current: 0.1})
	assert.True(t, r.IsSet(status.UnderVoltage))
	assert.True(t, r.IsSet(status.Error))

	c.Apply(r, Sample{Temperature: 30, Voltage: 5, Current: 0.1})
	assert.Equal(t, status.Field(0), r.Status())
}

func TestApply_KeepsOtherErrors(t *testing.T) {
	r := status.New()
	r.SetError(status.VersionError)
	c := NewConverter(config.Default().Measurement)

	c.Apply(r, Sample{Temperature: 30, Voltage: 5, Current: 0.1})
	assert.Equal(t, status.VersionError|status.Error, r.Status())
}

func TestApply_ZeroLimitsDisabled(t *testing.T) {
	cfg := config.Default().Measurement
	cfg.MaxTemperature = 0
	cfg.MinVoltage = 0
	cfg.MaxVoltage = 0
	cfg.MaxCurrent = 0
	r := status.New()

	NewConverter(cfg).Apply(r, Sample{Temperature: 200, Voltage: 0, Current: 10})
	assert.Equal(t, status.Field(0), r.Status())
}

func TestAverager(t *testing.T) {
	a := NewAverager(4)

	got := a.Push(Sample{Temperature: 20, Voltage: 5, Current: 1})
	assert.InDelta(t, 20, got.Temperature, 1e-4)
	assert.InDelta(t, 5, got.Voltage, 1e-4)
	assert.InDelta(t, 1, got.Current, 1e-4)
	assert.InDelta(t, 0, a.Noise(), 1e-3)

	got = a.Push(Sample{Temperature: 24, Voltage: 3, Current: 0})
	assert.InDelta(t, 21, got.Temperature, 1e-4)
	assert.InDelta(t, 4.5, got.Voltage, 1e-4)
	assert.InDelta(t, 0.75, got.Current, 1e-4)
	// Window 5, 5, 5, 3: squared deviations sum to 3, variance 1.
	assert.InDelta(t, 1, a.Noise(), 1e-3)

	for range 4 {
		got = a.Push(Sample{Temperature: 24, Voltage: 3, Current: 0})
	}
	assert.Equal(t, got, a.Value())
	assert.InDelta(t, 3, got.Voltage, 1e-4)
}

func TestAverager_ConstantSupplyHasNoNoise(t *testing.T) {
	a := NewAverager(8)
	a.Push(Sample{Temperature: 31.7, Voltage: 4.87, Current: 0.3})
	for i := range 40 {
		a.Push(Sample{Temperature: 31.7, Voltage: 4.87 + 0.01*float64(i%3), Current: 0.3})
	}
	for range 16 {
		a.Push(Sample{Temperature: 31.7, Voltage: 4.93, Current: 0.3})
	}
	assert.Equal(t, float64(float32(4.93)), a.Value().Voltage)
	assert.Equal(t, 0.0, a.Noise())
}

func TestAverager_Disabled(t *testing.T) {
	a := NewAverager(0)

	a.Push(Sample{Voltage: 5})
	got := a.Push(Sample{Voltage: 3})
	assert.InDelta(t, 3, got.Voltage, 1e-6)
}

func TestCounts_RoundTrip(t *testing.T) {
	c := NewConverter(config.Default().Measurement)
	want := Sample{Temperature: 30, Voltage: 5, Current: 0.4}

	temp, volt, curr := c.Counts(want)
	// 5 V behind the divider is 5/3 V, 2068.18 counts.
	assert.InDelta(t, 2068.18, volt, 0.01)

	assert.InDelta(t, want.Temperature, c.temperature(temp), 1e-9)
	assert.InDelta(t, want.Voltage, c.voltage(volt), 1e-9)
	assert.InDelta(t, want.Current, c.current(curr), 1e-9)
}
