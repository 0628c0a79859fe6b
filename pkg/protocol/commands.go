package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/daqcore/pkg/otp"
	"github.com/itohio/daqcore/pkg/status"
)

// MaxCalibrations is the number of entries one CAL line may carry.
const MaxCalibrations = 12

// Calibration is one "port,alpha,beta[,theta]" entry of a CAL command.
type Calibration struct {
	Port     int
	Alpha    float64
	Beta     float64
	Theta    float64
	HasTheta bool
}

// ParseCalibration parses one CAL entry.
func ParseCalibration(s string) (Calibration, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 3 || len(parts) > 4 {
		return Calibration{}, fmt.Errorf("calibration %q: want 3 or 4 fields, got %d", s, len(parts))
	}
	var c Calibration
	var err error
	if c.Port, err = strconv.Atoi(parts[0]); err != nil {
		return Calibration{}, fmt.Errorf("calibration %q: port: %w", s, err)
	}
	vals := []*float64{&c.Alpha, &c.Beta, &c.Theta}
	for i, p := range parts[1:] {
		if *vals[i], err = strconv.ParseFloat(p, 64); err != nil {
			return Calibration{}, fmt.Errorf("calibration %q: %w", s, err)
		}
	}
	c.HasTheta = len(parts) == 4
	return c, nil
}

// CAL p,a,b[,t] ... | CAL w | CAL r
func (d *Dispatcher) calibration(_, args string) bool {
	switch args {
	case "w", "r":
		if d.h.CalibrationRW == nil {
			return false
		}
		d.h.CalibrationRW(args == "w")
		return true
	}

	if d.h.Calibration == nil {
		return false
	}
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > MaxCalibrations {
		return false
	}
	entries := make([]Calibration, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCalibration(f)
		if err != nil {
			d.logger.Debug("bad calibration", "err", err)
			return false
		}
		entries = append(entries, c)
	}
	d.h.Calibration(entries)
	return true
}

// LOG pN
func (d *Dispatcher) logging(_, args string) bool {
	if d.h.Logging == nil {
		return false
	}
	port, ok := parsePort(args)
	if !ok {
		return false
	}
	d.h.Logging(port)
	return true
}

func parsePort(s string) (int, bool) {
	if len(s) < 2 || s[0] != 'p' {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// OTP r | OTP w 1 BB MM.NN DATE | OTP w 2 BB SS MM.NN DATE
func (d *Dispatcher) otp(_, args string) bool {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "r":
		if d.h.OTPRead == nil || len(fields) != 1 {
			return false
		}
		d.h.OTPRead(d.w)
		return true
	case "w":
	default:
		return false
	}

	if d.h.OTPWrite == nil || len(fields) < 2 {
		return false
	}
	version, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return false
	}
	if version == 0 || version > uint64(otp.CurrentVersion) {
		// Production only: unknown layouts are dropped without a reply.
		d.logger.Warn("otp write ignored", "version", version)
		return true
	}
	info, ok := parseBoardInfo(uint8(version), fields[2:])
	if !ok {
		return false
	}
	d.h.OTPWrite(info)
	return true
}

func parseBoardInfo(version uint8, f []string) (otp.BoardInfo, bool) {
	info := otp.BoardInfo{Version: version}
	var want int
	switch version {
	case otp.Version1:
		want = 3
	case otp.Version2:
		want = 4
	default:
		return info, false
	}
	if len(f) != want {
		return info, false
	}

	u8 := func(s string, dst *uint8) bool {
		v, err := strconv.ParseUint(s, 10, 8)
		*dst = uint8(v)
		return err == nil
	}
	if !u8(f[0], &info.BoardType) {
		return info, false
	}
	if version == otp.Version2 {
		if !u8(f[1], &info.SubBoardType) {
			return info, false
		}
		f = f[1:]
	}
	pcb, ok := parsePCB(f[1])
	if !ok {
		return info, false
	}
	info.PCB = pcb
	date, err := strconv.ParseUint(f[2], 10, 32)
	if err != nil {
		return info, false
	}
	info.ProductionDate = uint32(date)
	return info, true
}

func parsePCB(s string) (status.PCBVersion, bool) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return status.PCBVersion{}, false
	}
	ma, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return status.PCBVersion{}, false
	}
	mi, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return status.PCBVersion{}, false
	}
	return status.PCBVersion{Major: uint8(ma), Minor: uint8(mi)}, true
}

// uptime | uptime p | uptime r N
func (d *Dispatcher) uptime(_, args string) bool {
	fields := strings.Fields(args)
	switch {
	case len(fields) == 0 || (len(fields) == 1 && fields[0] == "p"):
		if d.h.Uptime == nil {
			return false
		}
		d.h.Uptime(d.w)
		return true
	case len(fields) == 2 && fields[0] == "r":
		if d.h.UptimeReset == nil {
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return false
		}
		d.h.UptimeReset(d.w, n)
		return true
	default:
		return false
	}
}
