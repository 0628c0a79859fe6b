// Package crash stores the post-mortem record a hard fault handler leaves in
// a reserved flash sector.
//
// The sector holds a little-endian uint32 length, the CBOR encoded Record and
// the CRC-32 of both. An erased sector means no record.
package crash

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic tags a valid record.
const Magic uint32 = 0xDEADFA17

var (
	// ErrNoRecord is returned by Load when the sector is erased.
	ErrNoRecord = errors.New("crash: no record")
	// ErrCorrupt is returned by Load for a record that fails to decode.
	ErrCorrupt = errors.New("crash: corrupt record")
)

// Record is the processor state captured at the fault.
type Record struct {
	Magic      uint32 `cbor:"0,keyasint"`
	PC         uint32 `cbor:"1,keyasint"`
	LR         uint32 `cbor:"2,keyasint"`
	PSR        uint32 `cbor:"3,keyasint"`
	CFSR       uint32 `cbor:"4,keyasint"`
	HFSR       uint32 `cbor:"5,keyasint"`
	UptimeMins uint32 `cbor:"6,keyasint"`
	SWVersion  string `cbor:"7,keyasint"`
}

func (r Record) String() string {
	return fmt.Sprintf("pc=0x%08X lr=0x%08X psr=0x%08X cfsr=0x%08X hfsr=0x%08X uptime=%dmin sw=%s",
		r.PC, r.LR, r.PSR, r.CFSR, r.HFSR, r.UptimeMins, r.SWVersion)
}

// Storage persists the record. flash.Store implements it.
type Storage interface {
	Read(addr uint32, n int, withCRC bool) ([]byte, error)
	Write(addr uint32, payload []byte, withCRC bool) error
}

// Log is the crash sector.
type Log struct {
	store Storage
	addr  uint32
	limit int
}

// New binds the log to addr. limit bounds the encoded record, typically the
// sector size.
func New(store Storage, addr uint32, limit int) *Log {
	return &Log{store: store, addr: addr, limit: limit}
}

// Store replaces the stored record with r.
func (l *Log) Store(r Record) error {
	r.Magic = Magic
	payload, err := cbor.Marshal(r)
	if err != nil {
		return fmt.Errorf("crash: encode: %w", err)
	}
	if 4+len(payload)+4 > l.limit {
		return fmt.Errorf("crash: record of %d bytes does not fit", len(payload))
	}
	buf := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(payload)), uint32(len(payload)))
	buf = append(buf, payload...)
	if err := l.store.Write(l.addr, buf, true); err != nil {
		return fmt.Errorf("crash: %w", err)
	}
	return nil
}

// Load returns the stored record.
func (l *Log) Load() (Record, error) {
	hdr, err := l.store.Read(l.addr, 4, false)
	if err != nil {
		return Record{}, fmt.Errorf("crash: %w", err)
	}
	n := binary.LittleEndian.Uint32(hdr)
	if n == 0xFFFFFFFF {
		return Record{}, ErrNoRecord
	}
	if int(n)+8 > l.limit {
		return Record{}, fmt.Errorf("%w: length %d", ErrCorrupt, n)
	}

	buf, err := l.store.Read(l.addr, 4+int(n), true)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var r Record
	if err := cbor.Unmarshal(buf[4:], &r); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if r.Magic != Magic {
		return Record{}, fmt.Errorf("%w: magic 0x%08X", ErrCorrupt, r.Magic)
	}
	return r, nil
}

// Clear erases the stored record.
func (l *Log) Clear() error {
	if err := l.store.Write(l.addr, []byte{0xFF, 0xFF, 0xFF, 0xFF}, false); err != nil {
		return fmt.Errorf("crash: %w", err)
	}
	return nil
}
