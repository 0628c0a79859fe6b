package protocol

import (
	"strconv"
	"strings"
)

// MaxPort is the highest port number the port commands accept.
const MaxPort = 12

// Indefinite is the duration of a port switched without a time limit.
const Indefinite = -1

// PortHandlers receive parsed port commands.
type PortHandlers struct {
	// AllOn switches every port on or off for dur seconds.
	AllOn func(on bool, dur int)
	// PortState switches port n to pct percent for dur seconds.
	PortState func(n int, on bool, pct, dur int)
}

// PortParser understands the port control commands:
//
//	all on | all off | all on DUR
//	pN on | pN off | pN on PCT% | pN on DUR | pN on DUR PCT%
//
// It is meant to be called on lines the Dispatcher could not classify.
type PortParser struct {
	h         PortHandlers
	undefined int
}

// NewPortParser returns a parser delivering to h.
func NewPortParser(h PortHandlers) *PortParser {
	return &PortParser{h: h}
}

// Undefined returns how many lines failed to parse.
func (p *PortParser) Undefined() int {
	return p.undefined
}

// Parse handles line and reports whether it was a valid port command.
func (p *PortParser) Parse(line string) bool {
	if p.parse(strings.Fields(line)) {
		return true
	}
	p.undefined++
	return false
}

func (p *PortParser) parse(f []string) bool {
	if len(f) < 2 {
		return false
	}
	var on bool
	switch f[1] {
	case "on":
		on = true
	case "off":
	default:
		return false
	}

	if f[0] == "all" {
		if p.h.AllOn == nil {
			return false
		}
		switch {
		case len(f) == 2:
			p.h.AllOn(on, Indefinite)
		case len(f) == 3 && on:
			dur, ok := parseDuration(f[2])
			if !ok {
				return false
			}
			p.h.AllOn(true, dur)
		default:
			return false
		}
		return true
	}

	n, ok := parsePort(f[0])
	if !ok || n > MaxPort || p.h.PortState == nil {
		return false
	}
	if !on {
		if len(f) != 2 {
			return false
		}
		p.h.PortState(n, false, 0, Indefinite)
		return true
	}

	pct, dur := 100, Indefinite
	switch len(f) {
	case 2:
	case 3:
		if v, ok := parsePercent(f[2]); ok {
			pct = v
		} else if v, ok := parseDuration(f[2]); ok {
			dur = v
		} else {
			return false
		}
	case 4:
		if dur, ok = parseDuration(f[2]); !ok {
			return false
		}
		if pct, ok = parsePercent(f[3]); !ok {
			return false
		}
	default:
		return false
	}
	p.h.PortState(n, true, pct, dur)
	return true
}

func parseDuration(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil || v < Indefinite {
		return 0, false
	}
	return v, true
}

func parsePercent(s string) (int, bool) {
	num, ok := strings.CutSuffix(s, "%")
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(num)
	if err != nil || v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}
