//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/board"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/flash"
)

var (
	uart = machine.UART0

	start = time.Now()
)

func main() {
	for _, pin := range portPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
		pin.Low()
	}
	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	cfg := config.Default()
	cfg.Acquisition.Channels = len(adcPins)
	cfg.Acquisition.Samples = NUM_SAMPLES
	cfg.Acquisition.SampleRate = 1e6 / SAMPLE_INTERVAL_US
	cfg.Measurement.VRef = ADC_REFERENCE_MV / 1000.0
	cfg.Measurement.Resolution = ADC_RESOLUTION
	cfg.Flash.SectorSize = FLASH_SECTOR_SIZE

	logger := log.NewWithOptions(machine.Serial, log.Options{Prefix: "daq", Level: log.WarnLevel})

	mem, err := flash.OpenBlock(machine.Flash, flash.Geometry{
		Base:       cfg.Flash.Base,
		SectorSize: cfg.Flash.SectorSize,
		Sectors:    cfg.Flash.Sectors,
	})
	if err != nil {
		logger.Fatal("flash", "err", err)
	}

	ep := &uartEndpoint{}
	b, err := board.New[int16](board.Options{
		Config:      cfg,
		Flash:       mem,
		Endpoint:    ep,
		Clock:       millis,
		BootMessage: "Power on reset",
		Hooks: board.Hooks{
			DFU:       machine.EnterBootloader,
			AllOn:     func(on bool, _ int) { setAll(on) },
			PortState: setPort,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("board", "err", err)
	}

	adc := newScanner(adcPins[:], cfg.Acquisition.Samples)
	if err := b.Start(adc); err != nil {
		logger.Fatal("acquisition", "err", err)
	}
	b.Port().SetLine(true)

	next := time.Now()
	for {
		now := time.Now()
		if !now.Before(next) {
			adc.Scan()
			next = next.Add(SAMPLE_INTERVAL_US * time.Microsecond)
		}

		for uart.Buffered() > 0 {
			c, err := uart.ReadByte()
			if err != nil {
				break
			}
			b.Port().Receive([]byte{c})
		}

		b.Step(millis())
		if ep.pending {
			ep.pending = false
			b.Port().TxComplete(nil)
		}
		if mem.Dirty() {
			if err := mem.Sync(); err != nil {
				logger.Error("flash sync", "err", err)
			}
		}
	}
}

func millis() uint32 {
	return uint32(time.Since(start).Milliseconds())
}

// setPort drives port n for a "pN on|off" command. Duty and duration are
// not supported by plain GPIO outputs.
func setPort(n int, on bool, _, _ int) {
	if n < 1 || n > len(portPins) {
		return
	}
	portPins[n-1].Set(on)
}

func setAll(on bool) {
	for _, pin := range portPins {
		pin.Set(on)
	}
}

// uartEndpoint writes packets synchronously and reports the completion on
// the next main loop pass, as the USB peripheral would from its interrupt.
type uartEndpoint struct {
	pending bool
}

func (e *uartEndpoint) Send(p []byte) error {
	_, err := uart.Write(p)
	e.pending = true
	return err
}
