package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration of a simulated board and the host tools.
type Config struct {
	Board       BoardConfig       `yaml:"board"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Uptime      UptimeConfig      `yaml:"uptime"`
	Flash       FlashConfig       `yaml:"flash"`
	Transport   TransportConfig   `yaml:"transport"`
	Serial      SerialConfig      `yaml:"serial"`
	Log         LogConfig         `yaml:"log"`
}

// BoardConfig describes the identity the firmware is built for.
type BoardConfig struct {
	Name         string `yaml:"name"`
	Type         uint8  `yaml:"type"`
	MinPCB       string `yaml:"min_pcb"`     // Oldest supported PCB revision, "major.minor"
	ExtraErrors  uint32 `yaml:"extra_errors"` // Board specific bits of the error mask
	SerialNumber uint32 `yaml:"serial_number"`
}

// AcquisitionConfig contains the ADC sampling geometry.
type AcquisitionConfig struct {
	Channels   int          `yaml:"channels"`
	Samples    int          `yaml:"samples"`     // Samples per channel in one half buffer
	SampleRate float64      `yaml:"sample_rate"` // Samples per second per channel
	Signal     SignalConfig `yaml:"signal"`
	Supply     SupplyConfig `yaml:"supply"`
}

// SignalConfig describes the waveform the simulated ADC produces on the
// signal channels.
type SignalConfig struct {
	Frequency float64 `yaml:"frequency"` // Hz
	Amplitude float64 `yaml:"amplitude"` // ADC counts
	Offset    float64 `yaml:"offset"`    // ADC counts
	Noise     float64 `yaml:"noise"`     // ADC counts, peak
}

// SupplyConfig is the supply state the simulated ADC presents on the
// measurement channels.
type SupplyConfig struct {
	Temperature float64 `yaml:"temperature"` // °C
	Voltage     float64 `yaml:"voltage"`     // V
	Current     float64 `yaml:"current"`     // A
}

// MeasurementConfig contains the status ADC channels, their conversion to
// physical units and the limits that raise supply errors. A negative channel
// disables the measurement.
type MeasurementConfig struct {
	VRef       float64 `yaml:"vref"`
	Resolution int     `yaml:"resolution"` // ADC bits

	TemperatureChannel int     `yaml:"temperature_channel"`
	TempV25            float64 `yaml:"temp_v25"`   // Sensor voltage at 25 °C
	TempSlope          float64 `yaml:"temp_slope"` // V per °C

	VoltageChannel int     `yaml:"voltage_channel"`
	R1             float64 `yaml:"r1"`
	R2             float64 `yaml:"r2"`

	CurrentChannel int     `yaml:"current_channel"`
	Shunt          float64 `yaml:"shunt"` // Ohm
	ShuntGain      float64 `yaml:"shunt_gain"`

	MaxTemperature float64 `yaml:"max_temperature"`
	MinVoltage     float64 `yaml:"min_voltage"`
	MaxVoltage     float64 `yaml:"max_voltage"`
	MaxCurrent     float64 `yaml:"max_current"`

	Average int `yaml:"average"` // Halves the measurements are averaged over
}

// UptimeConfig contains the uptime ledger parameters.
type UptimeConfig struct {
	SWVersion       string   `yaml:"sw_version"`
	Channels        []string `yaml:"channels"`         // Board specific channels after the defaults
	SessionInterval uint32   `yaml:"session_interval"` // ms
	FlashInterval   uint32   `yaml:"flash_interval"`   // ms
}

// FlashConfig describes the non-volatile memory and where each record lives.
type FlashConfig struct {
	Image        string `yaml:"image"` // Backing file of the simulated flash, empty keeps it in memory
	Base         uint32 `yaml:"base"`
	SectorSize   uint32 `yaml:"sector_size"`
	Sectors      int    `yaml:"sectors"`
	OTPSector    int    `yaml:"otp_sector"`
	UptimeSector int    `yaml:"uptime_sector"`
	CrashSector  int    `yaml:"crash_sector"`
}

// TransportConfig contains the board side byte transport parameters.
type TransportConfig struct {
	RxSize     int    `yaml:"rx_size"`
	TxSize     int    `yaml:"tx_size"`
	PacketSize int    `yaml:"packet_size"`
	OpenDelay  uint32 `yaml:"open_delay"` // ms
	Timeout    uint32 `yaml:"timeout"`    // ms
}

// SerialConfig contains the host serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// LogConfig contains the logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Board: BoardConfig{
			Name:         "daq",
			Type:         1,
			MinPCB:       "1.0",
			SerialNumber: 0x00C0FFEE,
		},
		Acquisition: AcquisitionConfig{
			Channels:   4,
			Samples:    100,
			SampleRate: 10000,
			Signal: SignalConfig{
				Frequency: 1000,
				Amplitude: 2047,
				Offset:    2047,
				Noise:     0,
			},
			Supply: SupplyConfig{
				Temperature: 30,
				Voltage:     5,
				Current:     0.4,
			},
		},
		Measurement: MeasurementConfig{
			VRef:               3.3,
			Resolution:         12,
			TemperatureChannel: 1,
			TempV25:            0.76,
			TempSlope:          0.0025,
			VoltageChannel:     2,
			R1:                 20000,
			R2:                 10000,
			CurrentChannel:     3,
			Shunt:              0.1,
			ShuntGain:          20,
			MaxTemperature:     85,
			MinVoltage:         4.5,
			MaxVoltage:         5.5,
			MaxCurrent:         1,
			Average:            8,
		},
		Uptime: UptimeConfig{
			SWVersion: "dev",
		},
		Flash: FlashConfig{
			Base:         0x08000000,
			SectorSize:   0x4000,
			Sectors:      8,
			OTPSector:    5,
			UptimeSector: 6,
			CrashSector:  7,
		},
		Transport: TransportConfig{
			RxSize:     1024,
			TxSize:     2048,
			PacketSize: 64,
			OpenDelay:  100,
			Timeout:    50,
		},
		Serial: SerialConfig{
			Port: "/dev/ttyACM0",
			Baud: 115200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills fields a zero value makes unusable.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Board.MinPCB == "" {
		c.Board.MinPCB = def.Board.MinPCB
	}

	if c.Acquisition.Channels <= 0 {
		c.Acquisition.Channels = def.Acquisition.Channels
	}
	if c.Acquisition.Samples <= 0 {
		c.Acquisition.Samples = def.Acquisition.Samples
	}
	if c.Acquisition.SampleRate <= 0 {
		c.Acquisition.SampleRate = def.Acquisition.SampleRate
	}

	if c.Measurement.VRef == 0 {
		c.Measurement.VRef = def.Measurement.VRef
	}
	if c.Measurement.Resolution == 0 {
		c.Measurement.Resolution = def.Measurement.Resolution
	}
	if c.Measurement.TempSlope == 0 {
		c.Measurement.TempSlope = def.Measurement.TempSlope
	}
	if c.Measurement.R2 == 0 {
		c.Measurement.R2 = def.Measurement.R2
	}
	if c.Measurement.Shunt == 0 {
		c.Measurement.Shunt = def.Measurement.Shunt
	}
	if c.Measurement.ShuntGain == 0 {
		c.Measurement.ShuntGain = def.Measurement.ShuntGain
	}
	if c.Measurement.Average <= 0 {
		c.Measurement.Average = 1
	}

	if c.Uptime.SWVersion == "" {
		c.Uptime.SWVersion = def.Uptime.SWVersion
	}

	if c.Flash.SectorSize == 0 {
		c.Flash.SectorSize = def.Flash.SectorSize
	}
	if c.Flash.Sectors == 0 {
		c.Flash.Sectors = def.Flash.Sectors
		c.Flash.OTPSector = def.Flash.OTPSector
		c.Flash.UptimeSector = def.Flash.UptimeSector
		c.Flash.CrashSector = def.Flash.CrashSector
	}

	if c.Transport.RxSize == 0 {
		c.Transport.RxSize = def.Transport.RxSize
	}
	if c.Transport.TxSize == 0 {
		c.Transport.TxSize = def.Transport.TxSize
	}
	if c.Transport.PacketSize == 0 {
		c.Transport.PacketSize = def.Transport.PacketSize
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = def.Transport.Timeout
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate reports a configuration the board cannot run with.
func (c *Config) Validate() error {
	f := c.Flash
	for name, s := range map[string]int{"otp": f.OTPSector, "uptime": f.UptimeSector, "crash": f.CrashSector} {
		if s < 0 || s >= f.Sectors {
			return fmt.Errorf("flash %s sector %d outside 0..%d", name, s, f.Sectors-1)
		}
	}
	if f.OTPSector == f.UptimeSector || f.OTPSector == f.CrashSector || f.UptimeSector == f.CrashSector {
		return fmt.Errorf("flash sectors must differ: otp %d, uptime %d, crash %d", f.OTPSector, f.UptimeSector, f.CrashSector)
	}

	m := c.Measurement
	for name, ch := range map[string]int{"temperature": m.TemperatureChannel, "voltage": m.VoltageChannel, "current": m.CurrentChannel} {
		if ch >= c.Acquisition.Channels {
			return fmt.Errorf("%s channel %d outside 0..%d", name, ch, c.Acquisition.Channels-1)
		}
	}
	if m.Resolution < 1 || m.Resolution > 31 {
		return fmt.Errorf("adc resolution %d out of range", m.Resolution)
	}

	if _, _, err := ParsePCB(c.Board.MinPCB); err != nil {
		return err
	}
	return nil
}

// ParsePCB parses a "major.minor" PCB revision.
func ParsePCB(s string) (major, minor uint8, err error) {
	if _, err := fmt.Sscanf(s, "%d.%d", &major, &minor); err != nil {
		return 0, 0, fmt.Errorf("invalid pcb version %q: %w", s, err)
	}
	return major, minor, nil
}
