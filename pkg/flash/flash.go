// Package flash models the MCU's internal sector-erased non-volatile memory.
//
// A Device exposes the three primitive operations of the hardware (erase a
// sector, program a byte, read a byte). Store layers whole-record reads and
// writes on top, optionally protected by the word-wise CRC-32 of package crc.
package flash

import (
	"errors"
	"fmt"
)

var (
	// ErrLocked is returned when programming or erasing while the flash
	// control register is locked.
	ErrLocked = errors.New("flash: control register locked")
	// ErrProtected is returned when programming or erasing a write-protected sector.
	ErrProtected = errors.New("flash: sector write protected")
	// ErrRange is returned for addresses or sectors outside the device.
	ErrRange = errors.New("flash: address out of range")
	// ErrProgram is returned when programming a byte that was not erased.
	ErrProgram = errors.New("flash: programming error")
	// ErrCRC is returned when a CRC-protected record does not verify.
	ErrCRC = errors.New("flash: crc mismatch")
)

// Device is a byte-addressable, sector-erased memory.
type Device interface {
	EraseSector(sector int) error
	ProgramByte(addr uint32, b byte) error
	ReadByte(addr uint32) (byte, error)
	Geometry() Geometry
}

// Geometry describes a flash made of equally sized sectors starting at Base.
type Geometry struct {
	Base       uint32
	SectorSize uint32
	Sectors    int
}

// Size returns the total number of bytes.
func (g Geometry) Size() uint32 {
	return g.SectorSize * uint32(g.Sectors)
}

// SectorBase returns the first address of sector.
func (g Geometry) SectorBase(sector int) uint32 {
	return g.Base + uint32(sector)*g.SectorSize
}

// Sector returns the sector containing addr.
func (g Geometry) Sector(addr uint32) (int, error) {
	if addr < g.Base || addr-g.Base >= g.Size() {
		return 0, fmt.Errorf("%w: 0x%08X", ErrRange, addr)
	}
	return int((addr - g.Base) / g.SectorSize), nil
}

// Contains reports whether [addr, addr+n) lies inside the device.
func (g Geometry) Contains(addr uint32, n int) bool {
	if n < 0 || addr < g.Base {
		return false
	}
	off := uint64(addr - g.Base)
	return off+uint64(n) <= uint64(g.Size())
}
