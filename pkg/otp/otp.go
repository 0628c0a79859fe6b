package otp

import (
	"encoding/binary"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/status"
)

// Controller is the flash access the OTP procedure needs. flash.Memory
// implements it.
type Controller interface {
	Unlock() error
	Lock() error
	UnlockOptions() error
	LockOptions() error
	SetWriteProtect(sector int, on bool) error
	LaunchOptions() error
	WriteProtected(sector int) (bool, error)
	EraseSector(sector int) error
	ProgramWord(addr uint32, w uint32) error
	ReadAt(p []byte, addr uint32) error
}

// OTP is the board identity area: one flash sector that is write-protected
// once programmed.
type OTP struct {
	ctl    Controller
	sector int
	base   uint32
	logger *log.Logger
}

// New binds the OTP to sector, whose first byte is at base.
func New(ctl Controller, sector int, base uint32, logger *log.Logger) *OTP {
	if logger == nil {
		logger = log.Default()
	}
	return &OTP{ctl: ctl, sector: sector, base: base, logger: logger.WithPrefix("otp")}
}

// Read returns the stored record. An unprotected sector reads as ErrEmpty.
func (o *OTP) Read() (BoardInfo, error) {
	protected, err := o.ctl.WriteProtected(o.sector)
	if err != nil {
		return BoardInfo{}, fmt.Errorf("otp: could not read protection: %w", err)
	}
	if !protected {
		return BoardInfo{}, ErrEmpty
	}

	buf := make([]byte, RecordSize)
	if err := o.ctl.ReadAt(buf, o.base); err != nil {
		return BoardInfo{}, fmt.Errorf("otp: %w", err)
	}
	var info BoardInfo
	if err := info.UnmarshalBinary(buf); err != nil {
		return BoardInfo{}, err
	}
	return info, nil
}

// Identity implements status.IdentitySource.
func (o *OTP) Identity() (uint8, status.PCBVersion, error) {
	info, err := o.Read()
	if err != nil {
		return 0, status.PCBVersion{}, err
	}
	return info.BoardType, info.PCB, nil
}

// Write programs info. Records with version 0 or newer than CurrentVersion
// are refused with ErrWriteFail and leave the flash untouched.
//
// The sequence is unlock, drop protection, erase, program, restore
// protection, lock. A failure part way through is returned wrapped in
// ErrWriteFail; the control registers are relocked regardless.
func (o *OTP) Write(info BoardInfo) (err error) {
	if !info.Valid() {
		return fmt.Errorf("%w: version %d", ErrWriteFail, info.Version)
	}
	record, err := info.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFail, err)
	}

	fail := func(step string, err error) error {
		o.logger.Error("write failed", "step", step, "err", err)
		return fmt.Errorf("%w: %s: %w", ErrWriteFail, step, err)
	}

	if err := o.ctl.Unlock(); err != nil {
		return fail("unlock", err)
	}
	defer func() {
		if lerr := o.ctl.Lock(); lerr != nil && err == nil {
			err = fail("lock", lerr)
		}
	}()
	if err := o.ctl.UnlockOptions(); err != nil {
		return fail("unlock options", err)
	}
	defer func() {
		if lerr := o.ctl.LockOptions(); lerr != nil && err == nil {
			err = fail("lock options", lerr)
		}
	}()

	if err := o.setProtection(false); err != nil {
		return fail("unprotect", err)
	}
	if err := o.ctl.EraseSector(o.sector); err != nil {
		return fail("erase", err)
	}
	for i := 0; i < len(record); i += 4 {
		w := binary.LittleEndian.Uint32(record[i:])
		if err := o.ctl.ProgramWord(o.base+uint32(i), w); err != nil {
			return fail("program", err)
		}
	}
	if err := o.setProtection(true); err != nil {
		return fail("protect", err)
	}

	o.logger.Info("board identity written", "version", info.Version, "type", info.BoardType, "pcb", info.PCB.String())
	return nil
}

func (o *OTP) setProtection(on bool) error {
	if err := o.ctl.SetWriteProtect(o.sector, on); err != nil {
		return err
	}
	return o.ctl.LaunchOptions()
}
