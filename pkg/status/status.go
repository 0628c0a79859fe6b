// Package status holds the board's process-wide status word and latest
// supply measurements.
//
// The status word is a 32-bit bitfield whose bit positions are part of the
// external ABI. Bits are updated atomically so the acquisition and transport
// interrupt domains may set their own bits while the main loop reads the word;
// readers should load once and compare against a mask.
package status

import (
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"
)

// Field is a set of status bits.
type Field uint32

// Status word bits.
const (
	Error           Field = 1 << 31
	OverTemperature Field = 1 << 30
	UnderVoltage    Field = 1 << 29
	OverVoltage     Field = 1 << 28
	OverCurrent     Field = 1 << 27
	VersionError    Field = 1 << 26
	USBError        Field = 1 << 25
	FlashOngoing    Field = 1 << 24
	Output100Hz     Field = 1 << 23

	// SystemErrors are the error bits every board reports.
	SystemErrors = OverTemperature | UnderVoltage | OverVoltage | OverCurrent | VersionError | USBError
)

// Kind classifies a status bit.
type Kind int

const (
	KindSummary Kind = iota
	KindError
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindSummary:
		return "summary"
	case KindError:
		return "error"
	default:
		return "status"
	}
}

// Definition names one bit of the status word.
type Definition struct {
	Field Field
	Name  string
	Kind  Kind
}

// Definitions lists the bits common to all boards, most significant first.
var Definitions = []Definition{
	{Error, "ERROR", KindSummary},
	{OverTemperature, "OVER_TEMPERATURE", KindError},
	{UnderVoltage, "UNDER_VOLTAGE", KindError},
	{OverVoltage, "OVER_VOLTAGE", KindError},
	{OverCurrent, "OVER_CURRENT", KindError},
	{VersionError, "VERSION_ERROR", KindError},
	{USBError, "USB_ERROR", KindError},
	{FlashOngoing, "FLASH_ONGOING", KindStatus},
	{Output100Hz, "100HZ_OUTPUT", KindStatus},
}

// Bit returns the position of the lowest bit of f.
func (f Field) Bit() int {
	return bits.TrailingZeros32(uint32(f))
}

func (f Field) String() string {
	return fmt.Sprintf("0x%08X", uint32(f))
}

// PCBVersion is a board revision.
type PCBVersion struct {
	Major uint8
	Minor uint8
}

// Less reports whether v is an older revision than o.
func (v PCBVersion) Less(o PCBVersion) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v PCBVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Registry is the board status registry.
type Registry struct {
	status    atomic.Uint32
	errorsMsk atomic.Uint32

	temp    atomic.Uint32
	voltage atomic.Uint32
	current atomic.Uint32
	usb     atomic.Uint32

	fwBoardType uint8
	fwPCB       PCBVersion

	extra []Definition
}

// New returns a registry whose error mask covers the system errors.
func New() *Registry {
	r := &Registry{}
	r.errorsMsk.Store(uint32(SystemErrors))
	return r
}

// ErrorMask returns the bits that count as errors for this board.
func (r *Registry) ErrorMask() Field {
	return Field(r.errorsMsk.Load())
}

// SetErrorMask replaces the error mask by the system errors plus extra.
func (r *Registry) SetErrorMask(extra Field) {
	r.errorsMsk.Store(uint32(SystemErrors | extra))
}

// Define names board-specific bits for the status definition listing.
func (r *Registry) Define(defs ...Definition) {
	r.extra = append(r.extra, defs...)
}

// AllDefinitions returns the common definitions followed by board-specific ones.
func (r *Registry) AllDefinitions() []Definition {
	out := make([]Definition, 0, len(Definitions)+len(r.extra))
	out = append(out, Definitions...)
	return append(out, r.extra...)
}

// Firmware returns the identity the firmware expects.
func (r *Registry) Firmware() (uint8, PCBVersion) {
	return r.fwBoardType, r.fwPCB
}

// Status returns the status word.
func (r *Registry) Status() Field {
	return Field(r.status.Load())
}

// Field returns the bits of f that are set.
func (r *Registry) Field(f Field) Field {
	return r.Status() & f
}

// IsSet reports whether any bit of f is set.
func (r *Registry) IsSet(f Field) bool {
	return r.Field(f) != 0
}

// SetField sets f.
func (r *Registry) SetField(f Field) {
	r.status.Or(uint32(f))
}

// ClearField clears f.
func (r *Registry) ClearField(f Field) {
	r.status.And(^uint32(f))
}

// UpdateField sets f when on, otherwise clears it.
func (r *Registry) UpdateField(f Field, on bool) {
	if on {
		r.SetField(f)
	} else {
		r.ClearField(f)
	}
}

// SetError sets f together with the summary error bit.
func (r *Registry) SetError(f Field) {
	r.status.Or(uint32(f | Error))
}

// ClearError clears f and, when no error bit of the mask remains set, the
// summary error bit.
func (r *Registry) ClearError(f Field) {
	for {
		old := r.status.Load()
		next := old &^ uint32(f)
		if next&r.errorsMsk.Load()&^uint32(Error) == 0 {
			next &^= uint32(Error)
		}
		if r.status.CompareAndSwap(old, next) {
			return
		}
	}
}

// UpdateError sets f (and the summary bit) when on, otherwise clears the
// bits errorBits the same way ClearError does.
func (r *Registry) UpdateError(f Field, on bool, errorBits Field) {
	if on {
		r.SetError(f)
	} else {
		r.ClearError(errorBits)
	}
}

// SetErrorRange clears every bit of rng, then sets f with the summary bit.
// Use it where a range of bits encodes one discrete state.
func (r *Registry) SetErrorRange(f, rng Field) {
	for {
		old := r.status.Load()
		next := (old &^ uint32(rng)) | uint32(f|Error)
		if r.status.CompareAndSwap(old, next) {
			return
		}
	}
}

// SetFieldRange clears every bit of rng, then sets f.
func (r *Registry) SetFieldRange(f, rng Field) {
	for {
		old := r.status.Load()
		next := (old &^ uint32(rng)) | uint32(f)
		if r.status.CompareAndSwap(old, next) {
			return
		}
	}
}

func loadFloat(a *atomic.Uint32) float32 {
	return math.Float32frombits(a.Load())
}

// Temperature returns the latest board temperature in °C.
func (r *Registry) Temperature() float32 { return loadFloat(&r.temp) }

// Voltage returns the latest supply voltage in V.
func (r *Registry) Voltage() float32 { return loadFloat(&r.voltage) }

// Current returns the latest supply current in A.
func (r *Registry) Current() float32 { return loadFloat(&r.current) }

// SetTemperature records the board temperature in °C.
func (r *Registry) SetTemperature(v float32) { r.temp.Store(math.Float32bits(v)) }

// SetVoltage records the supply voltage in V.
func (r *Registry) SetVoltage(v float32) { r.voltage.Store(math.Float32bits(v)) }

// SetCurrent records the supply current in A.
func (r *Registry) SetCurrent(v float32) { r.current.Store(math.Float32bits(v)) }

// USB returns the transport state word.
func (r *Registry) USB() uint32 { return r.usb.Load() }

// SetUSB records the transport state word.
func (r *Registry) SetUSB(v uint32) { r.usb.Store(v) }
