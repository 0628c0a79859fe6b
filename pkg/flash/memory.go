package flash

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Op identifies a flash operation for fault injection.
type Op int

const (
	OpUnlock Op = iota
	OpLock
	OpUnlockOptions
	OpLockOptions
	OpWriteProtect
	OpLaunchOptions
	OpErase
	OpProgram
)

func (o Op) String() string {
	switch o {
	case OpUnlock:
		return "unlock"
	case OpLock:
		return "lock"
	case OpUnlockOptions:
		return "unlock-options"
	case OpLockOptions:
		return "lock-options"
	case OpWriteProtect:
		return "write-protect"
	case OpLaunchOptions:
		return "launch-options"
	case OpErase:
		return "erase"
	case OpProgram:
		return "program"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Memory simulates the internal flash including its control lock and the
// per-sector write protection held in option bytes. Programming can only
// clear bits; erasing sets a whole sector to 0xFF.
//
// Write-protection changes are staged by SetWriteProtect and take effect on
// LaunchOptions, like the option byte reload of the real part.
type Memory struct {
	mu sync.Mutex

	geom Geometry
	data []byte
	// opt holds one active write-protection byte per sector followed by the
	// same number of staged bytes.
	opt []byte

	locked    bool
	optLocked bool

	// Fault, when set, is consulted before every mutating operation; a
	// non-nil return aborts the operation with that error.
	Fault func(op Op, addr uint32) error
}

var _ Device = (*Memory)(nil)

// NewMemory returns an erased, locked flash with no sector protected.
func NewMemory(geom Geometry) *Memory {
	data := make([]byte, geom.Size())
	opt := make([]byte, 2*geom.Sectors)
	return newMemory(geom, data, opt, true)
}

func newMemory(geom Geometry, data, opt []byte, erase bool) *Memory {
	if erase {
		for i := range data {
			data[i] = 0xFF
		}
		for i := range opt {
			opt[i] = 0
		}
	}
	copy(opt[geom.Sectors:], opt[:geom.Sectors])
	return &Memory{
		geom:      geom,
		data:      data,
		opt:       opt,
		locked:    true,
		optLocked: true,
	}
}

// Geometry implements Device.
func (m *Memory) Geometry() Geometry {
	return m.geom
}

func (m *Memory) fault(op Op, addr uint32) error {
	if m.Fault == nil {
		return nil
	}
	if err := m.Fault(op, addr); err != nil {
		return fmt.Errorf("flash %s at 0x%08X: %w", op, addr, err)
	}
	return nil
}

// Unlock enables erase and program operations.
func (m *Memory) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpUnlock, 0); err != nil {
		return err
	}
	m.locked = false
	return nil
}

// Lock disables erase and program operations.
func (m *Memory) Lock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpLock, 0); err != nil {
		return err
	}
	m.locked = true
	return nil
}

// UnlockOptions enables changes to the option bytes.
func (m *Memory) UnlockOptions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpUnlockOptions, 0); err != nil {
		return err
	}
	if m.locked {
		return ErrLocked
	}
	m.optLocked = false
	return nil
}

// LockOptions disables changes to the option bytes.
func (m *Memory) LockOptions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpLockOptions, 0); err != nil {
		return err
	}
	m.optLocked = true
	return nil
}

// SetWriteProtect stages the protection state of sector.
func (m *Memory) SetWriteProtect(sector int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sector < 0 || sector >= m.geom.Sectors {
		return fmt.Errorf("%w: sector %d", ErrRange, sector)
	}
	if err := m.fault(OpWriteProtect, m.geom.SectorBase(sector)); err != nil {
		return err
	}
	if m.optLocked {
		return ErrLocked
	}
	var v byte
	if on {
		v = 1
	}
	m.opt[m.geom.Sectors+sector] = v
	return nil
}

// LaunchOptions applies the staged option bytes.
func (m *Memory) LaunchOptions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpLaunchOptions, 0); err != nil {
		return err
	}
	if m.optLocked {
		return ErrLocked
	}
	copy(m.opt[:m.geom.Sectors], m.opt[m.geom.Sectors:])
	return nil
}

// WriteProtected reports the active protection state of sector.
func (m *Memory) WriteProtected(sector int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sector < 0 || sector >= m.geom.Sectors {
		return false, fmt.Errorf("%w: sector %d", ErrRange, sector)
	}
	return m.opt[sector] != 0, nil
}

// EraseSector implements Device.
func (m *Memory) EraseSector(sector int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sector < 0 || sector >= m.geom.Sectors {
		return fmt.Errorf("%w: sector %d", ErrRange, sector)
	}
	base := m.geom.SectorBase(sector)
	if err := m.fault(OpErase, base); err != nil {
		return err
	}
	if m.locked {
		return ErrLocked
	}
	if m.opt[sector] != 0 {
		return fmt.Errorf("%w: sector %d", ErrProtected, sector)
	}
	off := base - m.geom.Base
	for i := off; i < off+m.geom.SectorSize; i++ {
		m.data[i] = 0xFF
	}
	return nil
}

// ProgramByte implements Device.
func (m *Memory) ProgramByte(addr uint32, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.program(addr, []byte{b})
}

// ProgramWord programs a little-endian 32-bit word.
func (m *Memory) ProgramWord(addr uint32, w uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], w)
	return m.program(addr, buf[:])
}

func (m *Memory) program(addr uint32, p []byte) error {
	if !m.geom.Contains(addr, len(p)) {
		return fmt.Errorf("%w: 0x%08X+%d", ErrRange, addr, len(p))
	}
	if err := m.fault(OpProgram, addr); err != nil {
		return err
	}
	if m.locked {
		return ErrLocked
	}
	first, _ := m.geom.Sector(addr)
	last, _ := m.geom.Sector(addr + uint32(len(p)) - 1)
	for s := first; s <= last; s++ {
		if m.opt[s] != 0 {
			return fmt.Errorf("%w: sector %d", ErrProtected, s)
		}
	}
	off := addr - m.geom.Base
	for i, b := range p {
		cur := m.data[off+uint32(i)]
		if cur&b != b {
			return fmt.Errorf("%w: 0x%08X holds 0x%02X", ErrProgram, addr+uint32(i), cur)
		}
		m.data[off+uint32(i)] = b
	}
	return nil
}

// ReadByte implements Device.
func (m *Memory) ReadByte(addr uint32) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.geom.Contains(addr, 1) {
		return 0, fmt.Errorf("%w: 0x%08X", ErrRange, addr)
	}
	return m.data[addr-m.geom.Base], nil
}

// ReadAt copies len(p) bytes starting at addr.
func (m *Memory) ReadAt(p []byte, addr uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.geom.Contains(addr, len(p)) {
		return fmt.Errorf("%w: 0x%08X+%d", ErrRange, addr, len(p))
	}
	copy(p, m.data[addr-m.geom.Base:])
	return nil
}
