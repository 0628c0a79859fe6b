package status

import (
	"errors"
	"fmt"
)

// ErrVersionMismatch reports a board identity that differs from what the
// firmware was built for. It is not fatal: the board keeps running so it can
// be re-flashed over the transport.
var ErrVersionMismatch = errors.New("status: board version mismatch")

// IdentitySource reads the board identity from the OTP area.
type IdentitySource interface {
	Identity() (boardType uint8, pcb PCBVersion, err error)
}

// Setup records the identity the firmware expects, sets the error mask to the
// system errors plus extra, and compares the expectation against the OTP.
// A differing board type, an older PCB revision or an unreadable OTP latches
// VersionError.
func (r *Registry) Setup(src IdentitySource, boardType uint8, minPCB PCBVersion, extra Field) error {
	r.fwBoardType = boardType
	r.fwPCB = minPCB
	r.SetErrorMask(extra)

	var err error
	switch typ, pcb, rerr := src.Identity(); {
	case rerr != nil:
		err = fmt.Errorf("%w: %w", ErrVersionMismatch, rerr)
	case typ != boardType:
		err = fmt.Errorf("%w: board type %d, firmware built for %d", ErrVersionMismatch, typ, boardType)
	case pcb.Less(minPCB):
		err = fmt.Errorf("%w: pcb %s older than %s", ErrVersionMismatch, pcb, minPCB)
	}

	if err != nil {
		r.SetError(VersionError)
		return err
	}
	r.ClearError(VersionError)
	return nil
}
