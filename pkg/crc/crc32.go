package crc

import (
	"encoding/binary"
	"hash"
)

const (
	poly32 = 0x04C11DB7
	init32 = 0xFFFFFFFF
)

// Word32 is the CRC-32 of the MCU's hardware CRC unit: polynomial 0x04C11DB7,
// initial value 0xFFFFFFFF, 32-bit words fed most significant bit first, no
// reflection and no final xor. Bytes written to it are grouped into
// little-endian words, matching how the unit reads a buffer from memory; a
// trailing partial word is zero padded when the sum is taken.
type Word32 struct {
	crc  uint32
	tail [4]byte
	n    int
}

var _ hash.Hash32 = (*Word32)(nil)

// NewWord32 returns a reset Word32 hash.
func NewWord32() *Word32 {
	return &Word32{crc: init32}
}

// Words computes the checksum of a sequence of 32-bit words.
func Words(words []uint32) uint32 {
	crc := uint32(init32)
	for _, w := range words {
		crc = updateWord(crc, w)
	}
	return crc
}

// Checksum computes the word-wise checksum of data.
func Checksum(data []byte) uint32 {
	h := NewWord32()
	h.Write(data)
	return h.Sum32()
}

func updateWord(crc, w uint32) uint32 {
	crc ^= w
	for i := 0; i < 32; i++ {
		if crc&0x80000000 != 0 {
			crc = (crc << 1) ^ poly32
		} else {
			crc <<= 1
		}
	}
	return crc
}

// Write implements io.Writer. It never returns an error.
func (h *Word32) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		c := copy(h.tail[h.n:], p)
		h.n += c
		p = p[c:]
		if h.n == 4 {
			h.crc = updateWord(h.crc, binary.LittleEndian.Uint32(h.tail[:]))
			h.n = 0
		}
	}
	return n, nil
}

// Sum32 returns the checksum of the bytes written so far.
func (h *Word32) Sum32() uint32 {
	crc := h.crc
	if h.n > 0 {
		var last [4]byte
		copy(last[:], h.tail[:h.n])
		crc = updateWord(crc, binary.LittleEndian.Uint32(last[:]))
	}
	return crc
}

// Sum appends the little-endian checksum to b.
func (h *Word32) Sum(b []byte) []byte {
	return binary.LittleEndian.AppendUint32(b, h.Sum32())
}

// Reset restores the initial value.
func (h *Word32) Reset() {
	h.crc = init32
	h.n = 0
}

// Size returns the number of bytes Sum appends.
func (h *Word32) Size() int { return 4 }

// BlockSize returns the word size.
func (h *Word32) BlockSize() int { return 4 }
