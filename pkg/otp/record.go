// Package otp reads and writes the board identity record kept in a
// write-protected flash sector.
package otp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/itohio/daqcore/pkg/status"
)

// Record versions. The first byte of the record selects the layout.
const (
	Version1       uint8 = 1
	Version2       uint8 = 2
	CurrentVersion       = Version2
)

// RecordSize is the space a record occupies at the sector base.
const RecordSize = 32

var (
	// ErrEmpty is returned when the OTP sector has never been written.
	ErrEmpty = errors.New("otp: empty")
	// ErrWriteFail is returned when a record could not be written. It wraps
	// the underlying flash error if there is one.
	ErrWriteFail = errors.New("otp: write failed")
	// ErrVersion is returned when decoding a record of unknown layout.
	ErrVersion = errors.New("otp: unknown record version")
)

// BoardInfo is the board identity programmed at production.
type BoardInfo struct {
	Version        uint8
	BoardType      uint8
	SubBoardType   uint8 // v2 only
	PCB            status.PCBVersion
	ProductionDate uint32
}

// Valid reports whether b has a layout this firmware can write.
func (b BoardInfo) Valid() bool {
	return b.Version >= Version1 && b.Version <= CurrentVersion
}

// MarshalBinary encodes b into its RecordSize byte layout.
//
//	v1: version, type, pcb major, pcb minor, date (u32 LE)
//	v2: version, type, sub type, 3 reserved, pcb major, pcb minor, date (u32 LE)
func (b BoardInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	buf[0] = b.Version
	buf[1] = b.BoardType
	switch b.Version {
	case Version1:
		buf[2] = b.PCB.Major
		buf[3] = b.PCB.Minor
		binary.LittleEndian.PutUint32(buf[4:], b.ProductionDate)
	case Version2:
		buf[2] = b.SubBoardType
		buf[6] = b.PCB.Major
		buf[7] = b.PCB.Minor
		binary.LittleEndian.PutUint32(buf[8:], b.ProductionDate)
	default:
		return nil, fmt.Errorf("%w: %d", ErrVersion, b.Version)
	}
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (b *BoardInfo) UnmarshalBinary(p []byte) error {
	if len(p) < 12 {
		return fmt.Errorf("otp: record too short: %d bytes", len(p))
	}
	*b = BoardInfo{Version: p[0], BoardType: p[1]}
	switch b.Version {
	case Version1:
		b.PCB = status.PCBVersion{Major: p[2], Minor: p[3]}
		b.ProductionDate = binary.LittleEndian.Uint32(p[4:])
	case Version2:
		b.SubBoardType = p[2]
		b.PCB = status.PCBVersion{Major: p[6], Minor: p[7]}
		b.ProductionDate = binary.LittleEndian.Uint32(p[8:])
	default:
		return fmt.Errorf("%w: %d", ErrVersion, b.Version)
	}
	return nil
}

// WriteTo prints b in the form the OTP read command answers with.
func (b BoardInfo) WriteTo(w io.Writer) (int64, error) {
	var n int
	var err error
	if b.Version == Version1 {
		n, err = fmt.Fprintf(w, "\r\nOTP %d %d %s %d", b.Version, b.BoardType, b.PCB, b.ProductionDate)
	} else {
		n, err = fmt.Fprintf(w, "\r\nOTP %d %d %d %s %d", b.Version, b.BoardType, b.SubBoardType, b.PCB, b.ProductionDate)
	}
	return int64(n), err
}
