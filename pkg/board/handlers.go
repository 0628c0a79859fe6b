package board

import (
	"errors"
	"fmt"
	"io"

	"github.com/itohio/daqcore/pkg/otp"
	"github.com/itohio/daqcore/pkg/protocol"
)

func (b *Board[T]) handlers() protocol.Handlers {
	return protocol.Handlers{
		Header:        b.header,
		Status:        func(w io.Writer) { b.status.WriteStatus(w) },
		StatusDef:     func(w io.Writer) { b.status.WriteDefinitions(w) },
		DFU:           b.hooks.DFU,
		Calibration:   b.setCalibration,
		CalibrationRW: b.hooks.CalibrationRW,
		Logging:       b.setLogging,
		OTPRead:       b.otpRead,
		OTPWrite:      b.otpWrite,
		Uptime:        func(w io.Writer) { b.ledger.WriteTo(w) },
		UptimeReset:   b.uptimeReset,
		Undefined:     b.undefined,
	}
}

func (b *Board[T]) header(w io.Writer) {
	pcb := "unknown"
	if info, err := b.otp.Read(); err == nil {
		pcb = info.PCB.String()
	}
	fmt.Fprintf(w, "\r\nSerial Number: %08X\r\nProduct Type: %s\r\nFirmware: %s\r\nPCB Version: %s",
		b.cfg.Board.SerialNumber, b.cfg.Board.Name, b.cfg.Uptime.SWVersion, pcb)
}

func (b *Board[T]) setCalibration(entries []protocol.Calibration) {
	b.calibration = append(b.calibration[:0], entries...)
	b.logger.Info("calibration", "entries", len(entries))
	if b.hooks.Calibration != nil {
		b.hooks.Calibration(entries)
	}
}

// setLogging streams port n, the acquisition channel of the same number.
func (b *Board[T]) setLogging(port int) {
	if port >= b.engine.Channels() {
		b.logger.Warn("no such channel to log", "port", port)
		port = -1
	}
	b.logPort = port
	b.tone.Reset()
}

func (b *Board[T]) otpRead(w io.Writer) {
	info, err := b.otp.Read()
	switch {
	case errors.Is(err, otp.ErrEmpty):
		io.WriteString(w, "\r\nOTP empty")
	case err != nil:
		fmt.Fprintf(w, "\r\nOTP error: %v", err)
	default:
		info.WriteTo(w)
	}
}

func (b *Board[T]) otpWrite(info otp.BoardInfo) {
	if err := b.otp.Write(info); err != nil {
		b.logger.Error("otp write", "err", err)
		return
	}
	b.logger.Info("otp written", "type", info.BoardType, "pcb", info.PCB)
	b.setup()
}

func (b *Board[T]) uptimeReset(w io.Writer, channel int) {
	if err := b.ledger.Reset(channel); err != nil {
		fmt.Fprintf(w, "\r\nuptime: %v", err)
		return
	}
	b.ledger.WriteTo(w)
}

// undefined gives lines the dispatcher could not classify to the port
// parser before giving up on them.
func (b *Board[T]) undefined(w io.Writer, line string) {
	if b.ports.Parse(line) {
		return
	}
	protocol.Misread(w, line)
}
