package transport

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Errors is the latched transport error register.
type Errors uint32

const (
	// ErrCroppedTransmit: Tx could not fit the whole payload.
	ErrCroppedTransmit Errors = 1 << iota
	// ErrTransmit: the endpoint rejected a packet.
	ErrTransmit
	// ErrDelayedTransmit: resubmitting from the completion callback failed.
	// Cleared by the next successful completion.
	ErrDelayedTransmit
)

func (e Errors) String() string {
	if e == 0 {
		return "none"
	}
	var names []string
	for _, f := range []struct {
		bit  Errors
		name string
	}{
		{ErrCroppedTransmit, "cropped-transmit"},
		{ErrTransmit, "transmit"},
		{ErrDelayedTransmit, "delayed-transmit"},
	} {
		if e&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

var (
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("transport: timeout")
	// ErrClosed is returned when writing to a port whose line is closed.
	ErrClosed = errors.New("transport: port closed")
	// ErrCropped is returned by Write when only part of the payload fit.
	ErrCropped = errors.New("transport: transmit cropped")
)

// Endpoint sends one packet to the host. Completion is reported back through
// Port.TxComplete.
type Endpoint interface {
	Send(p []byte) error
}

// Clock returns a wrapping millisecond tick.
type Clock func() uint32

// PortConfig sizes a Port.
type PortConfig struct {
	RxSize     int
	TxSize     int
	PacketSize int
	// OpenDelay is how long, in ms, after the line opens IsOpen turns true.
	OpenDelay uint32
	// Timeout bounds Drain, in ms.
	Timeout uint32
}

// DefaultPortConfig matches a full-speed USB CDC endpoint.
func DefaultPortConfig() PortConfig {
	return PortConfig{
		RxSize:     1024,
		TxSize:     2048,
		PacketSize: 64,
		OpenDelay:  100,
		Timeout:    50,
	}
}

// Port is the board side of the byte transport. The foreground owns Tx,
// ReadByte, FlushRx and Drain; the interrupt side owns Receive, SetLine and
// TxComplete.
type Port struct {
	cfg    PortConfig
	rx     *Ring
	tx     *Ring
	ep     Endpoint
	now    Clock
	logger *log.Logger

	open   atomic.Bool
	openAt atomic.Uint32
	busy   atomic.Bool
	errs   atomic.Uint32

	packet []byte
}

// NewPort returns a Port sending through ep.
func NewPort(cfg PortConfig, ep Endpoint, now Clock, logger *log.Logger) *Port {
	def := DefaultPortConfig()
	if cfg.RxSize <= 0 {
		cfg.RxSize = def.RxSize
	}
	if cfg.TxSize <= 0 {
		cfg.TxSize = def.TxSize
	}
	if cfg.PacketSize <= 0 {
		cfg.PacketSize = def.PacketSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Port{
		cfg:    cfg,
		rx:     NewRing(cfg.RxSize),
		tx:     NewRing(cfg.TxSize),
		ep:     ep,
		now:    now,
		logger: logger.WithPrefix("transport"),
		packet: make([]byte, cfg.PacketSize),
	}
}

// SetLine records the host's line state. Interrupt side.
func (p *Port) SetLine(open bool) {
	if open {
		p.openAt.Store(p.now())
	}
	p.open.Store(open)
}

// IsOpen reports whether the host opened the line at least OpenDelay ms ago.
func (p *Port) IsOpen() bool {
	return p.open.Load() && p.now()-p.openAt.Load() >= p.cfg.OpenDelay
}

// Receive queues bytes from the host and returns how many fit. Interrupt
// side.
func (p *Port) Receive(b []byte) int {
	return p.rx.Put(b)
}

// ReadByte implements io.ByteReader over the receive ring.
func (p *Port) ReadByte() (byte, error) {
	return p.rx.ReadByte()
}

// FlushRx drops unread input.
func (p *Port) FlushRx() {
	p.rx.Flush()
}

// TxAvailable returns the free space of the transmit ring.
func (p *Port) TxAvailable() int {
	return p.tx.Free()
}

// Tx queues b for transmission and returns how many bytes were queued. A
// short count latches ErrCroppedTransmit.
func (p *Port) Tx(b []byte) int {
	n := p.tx.Put(b)
	if n < len(b) {
		p.latch(ErrCroppedTransmit)
	}
	p.kick()
	return n
}

// Write implements io.Writer on top of Tx.
func (p *Port) Write(b []byte) (int, error) {
	if !p.open.Load() {
		return 0, ErrClosed
	}
	n := p.Tx(b)
	if n < len(b) {
		return n, ErrCropped
	}
	return n, nil
}

// kick starts a transfer when the endpoint is idle.
func (p *Port) kick() {
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	if err := p.send(); err != nil {
		p.latch(ErrTransmit)
		p.logger.Debug("send failed", "err", err)
	}
}

func (p *Port) send() error {
	n := p.tx.Get(p.packet)
	if n == 0 {
		p.release()
		return nil
	}
	if err := p.ep.Send(p.packet[:n]); err != nil {
		p.busy.Store(false)
		return err
	}
	return nil
}

// release idles the endpoint. A Tx that ran between the empty Get and the
// store saw busy set and did not kick, so its bytes are picked up here.
func (p *Port) release() {
	p.busy.Store(false)
	if p.tx.Len() > 0 {
		p.kick()
	}
}

// TxComplete is called by the endpoint when a packet is out. err reports a
// failed transfer. Interrupt side.
func (p *Port) TxComplete(err error) {
	if err != nil {
		p.latch(ErrDelayedTransmit)
		p.busy.Store(false)
		return
	}
	p.clear(ErrDelayedTransmit)
	if err := p.send(); err != nil {
		p.latch(ErrDelayedTransmit)
	}
}

// Drain waits until everything queued has been handed to the endpoint.
func (p *Port) Drain() error {
	start := p.now()
	for p.tx.Len() > 0 || p.busy.Load() {
		if p.now()-start >= p.cfg.Timeout {
			return fmt.Errorf("%w: %d bytes pending", ErrTimeout, p.tx.Len())
		}
		p.kick()
		runtime.Gosched()
	}
	return nil
}

// LastError returns the latched errors.
func (p *Port) LastError() Errors {
	return Errors(p.errs.Load())
}

// ClearError clears the given bits of the error latch.
func (p *Port) ClearError(e Errors) {
	p.clear(e)
}

func (p *Port) latch(e Errors) {
	for {
		old := p.errs.Load()
		if p.errs.CompareAndSwap(old, old|uint32(e)) {
			return
		}
	}
}

func (p *Port) clear(e Errors) {
	for {
		old := p.errs.Load()
		if p.errs.CompareAndSwap(old, old&^uint32(e)) {
			return
		}
	}
}
