// Package protocol implements the line oriented control protocol spoken over
// the board's byte transport.
//
// A Dispatcher accumulates bytes into lines terminated by '\r' or '\n',
// classifies each line by its command tag and calls the matching handler.
// Every line of output starts with "\r\n".
package protocol

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/otp"
)

// BufferSize is the capacity of the line buffer. A line that reaches
// BufferSize-1 bytes without a terminator is dispatched as is.
const BufferSize = 512

// Handlers are the board's command handlers. A nil handler routes its
// command to Undefined.
type Handlers struct {
	// Header answers "Serial" with the board identification lines.
	Header func(w io.Writer)
	// Status and StatusDef print the body of the status blocks; the
	// dispatcher writes the block header and footer.
	Status    func(w io.Writer)
	StatusDef func(w io.Writer)
	// DFU jumps to the bootloader.
	DFU func()
	// Calibration receives up to MaxCalibrations parsed entries.
	Calibration func(entries []Calibration)
	// CalibrationRW persists (write) or reloads the calibration.
	CalibrationRW func(write bool)
	// Logging enables logging of port n.
	Logging func(port int)
	OTPRead  func(w io.Writer)
	OTPWrite func(info otp.BoardInfo)
	// Uptime prints the uptime ledger; UptimeReset resets one channel.
	Uptime      func(w io.Writer)
	UptimeReset func(w io.Writer, channel int)
	// Undefined receives lines that match no command or fail to parse.
	// When nil the dispatcher answers with Misread.
	Undefined func(w io.Writer, line string)
}

// Dispatcher turns a byte stream into handler calls.
type Dispatcher struct {
	r      io.ByteReader
	w      io.Writer
	h      Handlers
	logger *log.Logger

	buf [BufferSize]byte
	n   int
}

// New reads commands from r and writes replies to w. A nil logger uses the
// default logger.
func New(r io.ByteReader, w io.Writer, h Handlers, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{r: r, w: w, h: h, logger: logger.WithPrefix("protocol")}
}

// Flush discards the partially received line.
func (d *Dispatcher) Flush() {
	d.n = 0
}

// Pending returns the bytes of the partially received line.
func (d *Dispatcher) Pending() []byte {
	return d.buf[:d.n]
}

// Process reads bytes until r has no more or a complete line is available,
// in which case it dispatches the line and reports true. Call it repeatedly
// from the main loop; at most one line is handled per call.
func (d *Dispatcher) Process() bool {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return false
		}
		if b == '\r' || b == '\n' {
			if d.n == 0 {
				continue
			}
			d.dispatchBuffer()
			return true
		}

		d.buf[d.n] = b
		d.n++
		if d.n == BufferSize-1 {
			d.logger.Warn("line too long, dispatching", "len", d.n)
			d.dispatchBuffer()
			return true
		}
	}
}

func (d *Dispatcher) dispatchBuffer() {
	line := string(d.buf[:d.n])
	d.n = 0
	d.Dispatch(line)
}

type command struct {
	tag string
	run func(d *Dispatcher, line, args string) bool
}

// Longer tags sharing a prefix come first.
var commands = []command{
	{"StatusDef", (*Dispatcher).statusDef},
	{"Status", (*Dispatcher).status},
	{"Serial", (*Dispatcher).serial},
	{"DFU", (*Dispatcher).dfu},
	{"CAL", (*Dispatcher).calibration},
	{"LOG", (*Dispatcher).logging},
	{"OTP", (*Dispatcher).otp},
	{"uptime", (*Dispatcher).uptime},
}

// Dispatch classifies one line and calls its handler.
func (d *Dispatcher) Dispatch(line string) {
	for _, c := range commands {
		if !strings.HasPrefix(line, c.tag) {
			continue
		}
		if !c.run(d, line, strings.TrimSpace(line[len(c.tag):])) {
			d.undefined(line)
		}
		return
	}
	d.undefined(line)
}

func (d *Dispatcher) undefined(line string) {
	d.logger.Debug("undefined command", "line", line)
	if d.h.Undefined != nil {
		d.h.Undefined(d.w, line)
		return
	}
	Misread(d.w, line)
}

// Misread echoes a line that could not be understood.
func Misread(w io.Writer, line string) {
	fmt.Fprintf(w, "\r\nMISREAD: %s", line)
}

func (d *Dispatcher) statusDef(_, _ string) bool {
	if d.h.StatusDef == nil {
		return false
	}
	io.WriteString(d.w, "\r\nStart of board status definition:")
	d.h.StatusDef(d.w)
	io.WriteString(d.w, "\r\nEnd of board status definition.")
	return true
}

func (d *Dispatcher) status(_, _ string) bool {
	if d.h.Status == nil {
		return false
	}
	io.WriteString(d.w, "\r\nStart of board status:")
	d.h.Status(d.w)
	io.WriteString(d.w, "\r\nEnd of board status.")
	return true
}

func (d *Dispatcher) serial(_, _ string) bool {
	if d.h.Header == nil {
		return false
	}
	d.h.Header(d.w)
	return true
}

func (d *Dispatcher) dfu(_, _ string) bool {
	if d.h.DFU == nil {
		return false
	}
	d.h.DFU()
	return true
}
