// Package uptime keeps the board's lifetime counters in a CRC-protected flash
// record.
//
// The record is the last seen software version (16 bytes, zero padded)
// followed by one {id, resetCount, count} triple of little-endian uint32 per
// channel. Losing the record to a power cut between erase and program is
// acceptable: the CRC check fails and the ledger starts from zero.
package uptime

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/itohio/daqcore/pkg/status"
)

// Default channels.
const (
	TotalBoardMins = iota
	MinsSinceRework
	MinsSinceSWUpdate
	SWFailures

	DefaultChannels
)

const (
	// MaxChannels bounds the record to 0x200 bytes including its CRC.
	MaxChannels = 38
	// VersionSize is the length of the stored software version.
	VersionSize = 16

	// SessionInterval is how often, in ms, the minute counters advance.
	SessionInterval uint32 = 60_000
	// FlashInterval is how often, in ms, the ledger is persisted.
	FlashInterval uint32 = 86_400_000
	// FlashWarning is how long, in ms, FlashOngoing is raised before a
	// persist.
	FlashWarning uint32 = 1_000

	watchdogMarker = "Watch dog"
	channelSize    = 12
)

var (
	// ErrChannels is returned by Open for too many channels.
	ErrChannels = errors.New("uptime: too many channels")
	// ErrChannel is returned for an unknown channel number.
	ErrChannel = errors.New("uptime: no such channel")
	// ErrReadOnly is returned when resetting the total board minutes.
	ErrReadOnly = errors.New("uptime: channel cannot be reset")
)

var defaultNames = [DefaultChannels]string{
	"TOTAL_BOARD_MINS",
	"MINS_SINCE_REWORK",
	"MINS_SINCE_SW_UPDATE",
	"SW_FAILURES",
}

// Channel is one counter of the ledger.
type Channel struct {
	ID         uint32
	ResetCount uint32
	Count      uint32
}

// Storage persists the ledger record. flash.Store implements it.
type Storage interface {
	Read(addr uint32, n int, withCRC bool) ([]byte, error)
	Write(addr uint32, payload []byte, withCRC bool) error
}

// Flags is where the ledger raises FlashOngoing.
type Flags interface {
	UpdateField(f status.Field, on bool)
}

// Config describes a board's ledger.
type Config struct {
	// Names of the board specific channels that follow the defaults.
	Extra []string
	// BootMessage is the reset cause reported at boot.
	BootMessage string
	// SWVersion is the running software version. Only the first VersionSize
	// bytes are kept.
	SWVersion string
	// SessionInterval and FlashInterval override the defaults when non-zero.
	SessionInterval uint32
	FlashInterval   uint32
}

// Ledger is the uptime ledger of one board.
type Ledger struct {
	store  Storage
	addr   uint32
	flags  Flags
	logger *log.Logger

	names    []string
	version  [VersionSize]byte
	channels []Channel

	session uint32
	flash   uint32

	started     bool
	lastSession uint32
	lastFlash   uint32
	ongoing     bool
}

// Open loads the ledger at addr, or starts a zeroed one when the stored
// record is missing or corrupt, then applies the boot message and software
// version from cfg. flags may be nil.
func Open(store Storage, addr uint32, flags Flags, cfg Config, logger *log.Logger) (*Ledger, error) {
	l, err := newLedger(store, addr, cfg, logger)
	if err != nil {
		return nil, err
	}
	l.flags = flags

	dirty := false
	if err := l.load(); err != nil {
		l.logger.Warn("starting a new ledger", "err", err)
		l.version = [VersionSize]byte{}
		for i := range l.channels {
			l.channels[i] = Channel{ID: uint32(i)}
		}
		dirty = true
	}

	if strings.Contains(cfg.BootMessage, watchdogMarker) {
		l.channels[SWFailures].Count++
		l.logger.Warn("watchdog reset", "failures", l.channels[SWFailures].Count)
		dirty = true
	}

	var version [VersionSize]byte
	copy(version[:], cfg.SWVersion)
	if version != l.version {
		l.logger.Info("software updated", "from", versionString(l.version), "to", versionString(version))
		l.channels[MinsSinceSWUpdate].Count = 0
		l.version = version
		dirty = true
	}

	if dirty {
		if err := l.Save(); err != nil {
			return l, err
		}
	}
	return l, nil
}

// Inspect loads the ledger at addr as stored, without applying a boot or a
// software version. extra names the board specific channels.
func Inspect(store Storage, addr uint32, extra []string, logger *log.Logger) (*Ledger, error) {
	l, err := newLedger(store, addr, Config{Extra: extra}, logger)
	if err != nil {
		return nil, err
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func newLedger(store Storage, addr uint32, cfg Config, logger *log.Logger) (*Ledger, error) {
	n := DefaultChannels + len(cfg.Extra)
	if n > MaxChannels {
		return nil, fmt.Errorf("%w: %d > %d", ErrChannels, n, MaxChannels)
	}
	if logger == nil {
		logger = log.Default()
	}

	l := &Ledger{
		store:    store,
		addr:     addr,
		logger:   logger.WithPrefix("uptime"),
		names:    append(defaultNames[:], cfg.Extra...),
		channels: make([]Channel, n),
		session:  cfg.SessionInterval,
		flash:    cfg.FlashInterval,
	}
	if l.session == 0 {
		l.session = SessionInterval
	}
	if l.flash == 0 {
		l.flash = FlashInterval
	}
	return l, nil
}

func versionString(v [VersionSize]byte) string {
	return string(bytes.TrimRight(v[:], "\x00"))
}

func (l *Ledger) size() int {
	return VersionSize + channelSize*len(l.channels)
}

func (l *Ledger) load() error {
	p, err := l.store.Read(l.addr, l.size(), true)
	if err != nil {
		return err
	}
	copy(l.version[:], p)
	p = p[VersionSize:]
	for i := range l.channels {
		ch := Channel{
			ID:         binary.LittleEndian.Uint32(p[0:]),
			ResetCount: binary.LittleEndian.Uint32(p[4:]),
			Count:      binary.LittleEndian.Uint32(p[8:]),
		}
		if ch.ID != uint32(i) {
			return fmt.Errorf("uptime: channel %d stored as %d", i, ch.ID)
		}
		l.channels[i] = ch
		p = p[channelSize:]
	}
	return nil
}

// MarshalBinary encodes the ledger record without its CRC.
func (l *Ledger) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, l.size())
	buf = append(buf, l.version[:]...)
	for _, ch := range l.channels {
		buf = binary.LittleEndian.AppendUint32(buf, ch.ID)
		buf = binary.LittleEndian.AppendUint32(buf, ch.ResetCount)
		buf = binary.LittleEndian.AppendUint32(buf, ch.Count)
	}
	return buf, nil
}

// Save persists the ledger.
func (l *Ledger) Save() error {
	p, _ := l.MarshalBinary()
	if err := l.store.Write(l.addr, p, true); err != nil {
		return fmt.Errorf("uptime: could not persist: %w", err)
	}
	return nil
}

// Update advances the counters to now, a wrapping millisecond tick. The first
// call only records the starting tick.
func (l *Ledger) Update(now uint32) error {
	if !l.started {
		l.started = true
		l.lastSession, l.lastFlash = now, now
		return nil
	}

	for now-l.lastSession >= l.session {
		l.lastSession += l.session
		for ch := TotalBoardMins; ch <= MinsSinceSWUpdate; ch++ {
			l.channels[ch].Count++
		}
	}

	elapsed := now - l.lastFlash
	if !l.ongoing && elapsed+FlashWarning >= l.flash {
		l.ongoing = true
		l.setOngoing(true)
	}
	if elapsed < l.flash {
		return nil
	}

	l.lastFlash = now
	err := l.Save()
	l.ongoing = false
	l.setOngoing(false)
	return err
}

func (l *Ledger) setOngoing(on bool) {
	if l.flags != nil {
		l.flags.UpdateField(status.FlashOngoing, on)
	}
}

// Add increases the count of channel n by delta.
func (l *Ledger) Add(n int, delta uint32) error {
	if n < 0 || n >= len(l.channels) {
		return fmt.Errorf("%w: %d", ErrChannel, n)
	}
	l.channels[n].Count += delta
	return nil
}

// Reset zeroes channel n and counts the reset. TotalBoardMins refuses.
func (l *Ledger) Reset(n int) error {
	switch {
	case n < 0 || n >= len(l.channels):
		return fmt.Errorf("%w: %d", ErrChannel, n)
	case n == TotalBoardMins:
		return fmt.Errorf("%w: %s", ErrReadOnly, l.names[n])
	}
	l.channels[n].ResetCount++
	l.channels[n].Count = 0
	l.logger.Info("channel reset", "channel", l.names[n], "resets", l.channels[n].ResetCount)
	return l.Save()
}

// Channel returns channel n.
func (l *Ledger) Channel(n int) (Channel, bool) {
	if n < 0 || n >= len(l.channels) {
		return Channel{}, false
	}
	return l.channels[n], true
}

// Channels returns a copy of all channels.
func (l *Ledger) Channels() []Channel {
	return append([]Channel(nil), l.channels...)
}

// Name returns the name of channel n.
func (l *Ledger) Name(n int) string {
	if n < 0 || n >= len(l.names) {
		return ""
	}
	return l.names[n]
}

// Version returns the software version the ledger last saw.
func (l *Ledger) Version() string {
	return versionString(l.version)
}

// WriteTo prints the ledger as a table.
func (l *Ledger) WriteTo(w io.Writer) (int64, error) {
	var total int64
	n, err := io.WriteString(w, "\r\nName, channel, reset, count")
	total += int64(n)
	if err != nil {
		return total, err
	}
	for i, ch := range l.channels {
		n, err := fmt.Fprintf(w, "\r\n%s, %d, %d, %d", l.names[i], ch.ID, ch.ResetCount, ch.Count)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
