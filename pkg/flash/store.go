package flash

import (
	"encoding/binary"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/crc"
)

// Unlocker is implemented by devices that gate erase and program behind a
// control register lock.
type Unlocker interface {
	Unlock() error
	Lock() error
}

// Store reads and writes whole records. A record written with CRC is
// followed by the 4-byte little-endian word-wise CRC-32 of its payload.
//
// Write erases every sector the record spans before programming, so each
// record must own its sectors.
type Store struct {
	dev    Device
	logger *log.Logger
}

// NewStore wraps dev. A nil logger uses the default logger.
func NewStore(dev Device, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{dev: dev, logger: logger.WithPrefix("flash")}
}

// Device returns the wrapped device.
func (s *Store) Device() Device {
	return s.dev
}

// Read returns n bytes starting at addr. With withCRC the 4 bytes after the
// payload must hold its CRC, otherwise ErrCRC is returned along with the data.
func (s *Store) Read(addr uint32, n int, withCRC bool) ([]byte, error) {
	total := n
	if withCRC {
		total += 4
	}
	if !s.dev.Geometry().Contains(addr, total) {
		return nil, fmt.Errorf("%w: 0x%08X+%d", ErrRange, addr, total)
	}

	buf := make([]byte, total)
	if err := s.readInto(buf, addr); err != nil {
		return nil, err
	}

	payload := buf[:n]
	if withCRC {
		want := binary.LittleEndian.Uint32(buf[n:])
		if got := crc.Checksum(payload); got != want {
			return payload, fmt.Errorf("%w at 0x%08X: stored 0x%08X, computed 0x%08X", ErrCRC, addr, want, got)
		}
	}
	return payload, nil
}

func (s *Store) readInto(buf []byte, addr uint32) error {
	if r, ok := s.dev.(interface {
		ReadAt(p []byte, addr uint32) error
	}); ok {
		return r.ReadAt(buf, addr)
	}
	for i := range buf {
		b, err := s.dev.ReadByte(addr + uint32(i))
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

// Write erases the sectors spanned by the record and programs payload, with
// its CRC appended when withCRC is set.
func (s *Store) Write(addr uint32, payload []byte, withCRC bool) (err error) {
	record := payload
	if withCRC {
		record = make([]byte, len(payload), len(payload)+4)
		copy(record, payload)
		record = binary.LittleEndian.AppendUint32(record, crc.Checksum(payload))
	}

	geom := s.dev.Geometry()
	if len(record) == 0 {
		return nil
	}
	if !geom.Contains(addr, len(record)) {
		return fmt.Errorf("%w: 0x%08X+%d", ErrRange, addr, len(record))
	}

	if u, ok := s.dev.(Unlocker); ok {
		if err := u.Unlock(); err != nil {
			return fmt.Errorf("could not unlock flash: %w", err)
		}
		defer func() {
			if lerr := u.Lock(); lerr != nil && err == nil {
				err = fmt.Errorf("could not lock flash: %w", lerr)
			}
		}()
	}

	first, _ := geom.Sector(addr)
	last, _ := geom.Sector(addr + uint32(len(record)) - 1)
	for sector := first; sector <= last; sector++ {
		if err := s.dev.EraseSector(sector); err != nil {
			return fmt.Errorf("could not erase sector %d: %w", sector, err)
		}
	}

	for i, b := range record {
		if err := s.dev.ProgramByte(addr+uint32(i), b); err != nil {
			return fmt.Errorf("could not program 0x%08X: %w", addr+uint32(i), err)
		}
	}

	s.logger.Debug("record written", "addr", fmt.Sprintf("0x%08X", addr), "len", len(record), "crc", withCRC)
	return nil
}
