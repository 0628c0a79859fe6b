// Package crc implements the table-free checksums used by the board core:
// configurable CRC-4 and CRC-8 for bus-attached sensors, and the word-wise
// CRC-32 computed by the MCU's hardware CRC unit for non-volatile records.
package crc

// CRC4 holds the polynomial and initial value of a 4-bit CRC.
// Only the low nibble of Poly and Init is used.
type CRC4 struct {
	Poly uint8
	Init uint8
}

// CRC8 holds the polynomial and initial value of an 8-bit CRC.
type CRC8 struct {
	Poly uint8
	Init uint8
}

// Common parameter sets.
var (
	// Sensirion humidity/temperature sensors (CRC-8/NRSC-5).
	Sensirion = CRC8{Poly: 0x31, Init: 0xFF}
	// SMBus packet error code.
	SMBus = CRC8{Poly: 0x07, Init: 0x00}
	// Interlaken CRC-4 without the final xor, as used by pressure sensor PROMs.
	Interlaken = CRC4{Poly: 0x03, Init: 0x0F}
)

// Checksum computes the CRC-4 of data, most significant bit first.
func (c CRC4) Checksum(data []byte) uint8 {
	crc := c.Init & 0x0F
	poly := c.Poly & 0x0F
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bit := (b >> uint(i)) & 1
			top := (crc >> 3) & 1
			crc = (crc << 1) & 0x0F
			if top^bit != 0 {
				crc ^= poly
			}
		}
	}
	return crc
}

// Checksum computes the CRC-8 of data, most significant bit first.
func (c CRC8) Checksum(data []byte) uint8 {
	crc := c.Init
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ c.Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Verify reports whether the CRC-8 of data equals want.
func (c CRC8) Verify(data []byte, want uint8) bool {
	return c.Checksum(data) == want
}
