//go:build tinygo

package main

import (
	"errors"
	"machine"
)

// scanner samples every ADC input once per Scan and fills the acquisition
// ring the way a circular DMA transfer does.
type scanner struct {
	adcs    []machine.ADC
	samples int

	buf  []int16
	pos  int
	half func()
	full func()
}

func newScanner(pins []machine.Pin, samples int) *scanner {
	machine.InitADC()
	s := &scanner{samples: samples}
	for _, pin := range pins {
		adc := machine.ADC{Pin: pin}
		adc.Configure(machine.ADCConfig{Reference: ADC_REFERENCE_MV, Resolution: ADC_RESOLUTION})
		s.adcs = append(s.adcs, adc)
	}
	return s
}

func (s *scanner) StartCircular(buf []int16, half, full func()) error {
	if len(buf) != 2*len(s.adcs)*s.samples {
		return errors.New("adc: ring size does not match the channels")
	}
	s.buf, s.pos, s.half, s.full = buf, 0, half, full
	return nil
}

// Scan converts one sample per channel. Get returns a 16-bit scaled value.
func (s *scanner) Scan() {
	if s.buf == nil {
		return
	}
	for _, adc := range s.adcs {
		s.buf[s.pos] = int16(adc.Get() >> (16 - ADC_RESOLUTION))
		s.pos++
	}
	switch s.pos {
	case len(s.buf) / 2:
		s.half()
	case len(s.buf):
		s.pos = 0
		s.full()
	}
}
