// Package board wires the firmware core of one data-acquisition board: the
// status registry checked against the OTP identity, the uptime ledger, the
// crash log, the acquisition engine feeding the supply measurements, and the
// control protocol spoken over the byte transport.
//
// Step is the body of the foreground loop. Everything it calls runs to
// completion; the acquisition producer and the transport endpoint are the
// interrupt side.
package board

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/acq"
	"github.com/itohio/daqcore/pkg/config"
	"github.com/itohio/daqcore/pkg/crash"
	"github.com/itohio/daqcore/pkg/dsp"
	"github.com/itohio/daqcore/pkg/flash"
	"github.com/itohio/daqcore/pkg/otp"
	"github.com/itohio/daqcore/pkg/protocol"
	"github.com/itohio/daqcore/pkg/sample"
	"github.com/itohio/daqcore/pkg/status"
	"github.com/itohio/daqcore/pkg/transport"
	"github.com/itohio/daqcore/pkg/uptime"
)

// Flash is the non-volatile memory of the board. flash.Memory and
// flash.File implement it.
type Flash interface {
	flash.Device
	otp.Controller
}

// Hooks are the board specific command handlers. Nil hooks fall back to the
// board's own behaviour, or to MISREAD where there is none.
type Hooks struct {
	DFU           func()
	Calibration   func(entries []protocol.Calibration)
	CalibrationRW func(write bool)
	AllOn         func(on bool, dur int)
	PortState     func(n int, on bool, pct, dur int)
}

// Options configure New.
type Options struct {
	Config *config.Config
	Flash  Flash
	// Endpoint sends transport packets to the host and Clock is the
	// millisecond tick shared by the transport timeouts.
	Endpoint transport.Endpoint
	Clock    transport.Clock
	// BootMessage is the reset cause, e.g. "Watch dog reset".
	BootMessage string
	Hooks       Hooks
	Logger      *log.Logger
}

// Board is one running board.
type Board[T acq.Sample] struct {
	cfg    *config.Config
	logger *log.Logger
	hooks  Hooks
	pcb    status.PCBVersion

	status     *status.Registry
	otp        *otp.OTP
	ledger     *uptime.Ledger
	crashes    *crash.Log
	engine     *acq.Engine[T]
	port       *transport.Port
	dispatcher *protocol.Dispatcher
	ports      *protocol.PortParser

	conv     *sample.Converter
	avg      *sample.Averager
	measured sample.Sample
	tone     *dsp.Goertzel
	logPort  int
	frames   uint64
	onFrame  func(acq.Frame[T])

	calibration []protocol.Calibration
	lastCrash   *crash.Record
}

// New builds a board from opts. Identity mismatches and unreadable records
// are logged and reflected in the status word; only configuration errors
// fail.
func New[T acq.Sample](opts Options) (*Board[T], error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	if opts.Flash == nil || opts.Endpoint == nil || opts.Clock == nil {
		return nil, errors.New("board: flash, endpoint and clock are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	major, minor, _ := config.ParsePCB(cfg.Board.MinPCB)
	b := &Board[T]{
		cfg:     cfg,
		logger:  logger.WithPrefix("board"),
		hooks:   opts.Hooks,
		pcb:     status.PCBVersion{Major: major, Minor: minor},
		status:  status.New(),
		conv:    sample.NewConverter(cfg.Measurement),
		avg:     sample.NewAverager(cfg.Measurement.Average),
		logPort: -1,
	}

	geom := opts.Flash.Geometry()
	if geom.SectorSize != cfg.Flash.SectorSize || geom.Sectors != cfg.Flash.Sectors {
		return nil, fmt.Errorf("board: flash geometry %d×%d does not match configuration %d×%d",
			geom.Sectors, geom.SectorSize, cfg.Flash.Sectors, cfg.Flash.SectorSize)
	}
	store := flash.NewStore(opts.Flash, logger)

	b.otp = otp.New(opts.Flash, cfg.Flash.OTPSector, geom.SectorBase(cfg.Flash.OTPSector), logger)
	b.setup()

	ledger, err := uptime.Open(store, geom.SectorBase(cfg.Flash.UptimeSector), b.status, uptime.Config{
		Extra:           cfg.Uptime.Channels,
		BootMessage:     opts.BootMessage,
		SWVersion:       cfg.Uptime.SWVersion,
		SessionInterval: cfg.Uptime.SessionInterval,
		FlashInterval:   cfg.Uptime.FlashInterval,
	}, logger)
	if ledger == nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	if err != nil {
		b.logger.Error("uptime ledger not persisted", "err", err)
	}
	b.ledger = ledger

	b.crashes = crash.New(store, geom.SectorBase(cfg.Flash.CrashSector), int(geom.SectorSize))
	switch rec, err := b.crashes.Load(); {
	case err == nil:
		b.lastCrash = &rec
		b.logger.Warn("previous run crashed", "record", rec)
	case !errors.Is(err, crash.ErrNoRecord):
		b.logger.Warn("unreadable crash record", "err", err)
	}

	acqCfg := cfg.Acquisition
	b.engine, err = acq.New(acqCfg.Channels, acqCfg.Samples, make([]T, 2*acqCfg.Channels*acqCfg.Samples))
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	b.tone, err = dsp.NewGoertzel(dsp.GoertzelConfig{
		ADCResolution: float32(uint32(1) << cfg.Measurement.Resolution),
		VRange:        float32(cfg.Measurement.VRef),
		Gain:          1,
		Target:        float32(acqCfg.Signal.Frequency),
		SampleRate:    float32(acqCfg.SampleRate),
		N:             acqCfg.Samples,
		VToUnit:       1,
	})
	if err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}

	tc := cfg.Transport
	b.port = transport.NewPort(transport.PortConfig{
		RxSize:     tc.RxSize,
		TxSize:     tc.TxSize,
		PacketSize: tc.PacketSize,
		OpenDelay:  tc.OpenDelay,
		Timeout:    tc.Timeout,
	}, opts.Endpoint, opts.Clock, logger)

	b.ports = protocol.NewPortParser(protocol.PortHandlers{
		AllOn:     opts.Hooks.AllOn,
		PortState: opts.Hooks.PortState,
	})
	b.dispatcher = protocol.New(b.port, b.port, b.handlers(), logger)

	return b, nil
}

// setup checks the OTP identity against the configured board.
func (b *Board[T]) setup() {
	err := b.status.Setup(b.otp, b.cfg.Board.Type, b.pcb, status.Field(b.cfg.Board.ExtraErrors))
	if err != nil {
		b.logger.Warn("board identity", "err", err)
	}
}

// Start arms the acquisition producer.
func (b *Board[T]) Start(dma acq.DMA[T]) error {
	return b.engine.Start(dma)
}

// Step runs one pass of the foreground loop at tick now (ms): it hands a
// completed acquisition half to the measurements, handles at most one
// command line, advances the uptime ledger and reflects the transport error
// latch in the status word.
func (b *Board[T]) Step(now uint32) {
	b.engine.Loop(b.frame)
	b.dispatcher.Process()

	if err := b.ledger.Update(now); err != nil {
		b.logger.Error("uptime update", "err", err)
	}

	usb := b.port.LastError()
	b.status.SetUSB(uint32(usb))
	b.status.UpdateError(status.USBError, usb != 0, status.USBError)
}

// OnFrame registers a consumer called with every completed half after the
// measurements are updated.
func (b *Board[T]) OnFrame(fn func(acq.Frame[T])) {
	b.onFrame = fn
}

// RecordFault stores r as the crash record, stamped with the board's uptime
// and software version.
func (b *Board[T]) RecordFault(r crash.Record) error {
	r.Magic = crash.Magic
	if ch, ok := b.ledger.Channel(uptime.TotalBoardMins); ok {
		r.UptimeMins = ch.Count
	}
	r.SWVersion = b.cfg.Uptime.SWVersion
	return b.crashes.Store(r)
}

// LastCrash returns the crash record found at boot, if any.
func (b *Board[T]) LastCrash() (crash.Record, bool) {
	if b.lastCrash == nil {
		return crash.Record{}, false
	}
	return *b.lastCrash, true
}

// ClearCrash erases the crash record.
func (b *Board[T]) ClearCrash() error {
	b.lastCrash = nil
	return b.crashes.Clear()
}

// Status returns the status registry.
func (b *Board[T]) Status() *status.Registry { return b.status }

// Uptime returns the uptime ledger.
func (b *Board[T]) Uptime() *uptime.Ledger { return b.ledger }

// Port returns the byte transport.
func (b *Board[T]) Port() *transport.Port { return b.port }

// Engine returns the acquisition engine.
func (b *Board[T]) Engine() *acq.Engine[T] { return b.engine }

// OTP returns the identity area.
func (b *Board[T]) OTP() *otp.OTP { return b.otp }

// Ports returns the port command parser.
func (b *Board[T]) Ports() *protocol.PortParser { return b.ports }

// Measurement returns the latest averaged supply measurements.
func (b *Board[T]) Measurement() sample.Sample { return b.measured }

// Frames returns how many acquisition halves were processed.
func (b *Board[T]) Frames() uint64 { return b.frames }

// Calibration returns the calibration entries received last.
func (b *Board[T]) Calibration() []protocol.Calibration {
	return append([]protocol.Calibration(nil), b.calibration...)
}
