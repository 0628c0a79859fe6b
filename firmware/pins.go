//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_US = 1000 // One scan of all channels per millisecond
	NUM_SAMPLES        = 50   // Scans per acquisition half (20 halves per second)

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Emulated flash sector size. OTP, uptime and crash sectors live in the
	// user area of machine.Flash, 8 KiB in total.
	FLASH_SECTOR_SIZE = 1024

	// Serial configuration. The protocol answers are short, LOG lines are
	// ~40 bytes at 20 lines per second.
	UART_BAUD_RATE = 115200
)

// Port outputs switched by "pN on|off" commands, p1 first.
var portPins = [...]machine.Pin{machine.D7, machine.D8, machine.D9}

// ADC inputs in acquisition channel order: the signal, the MCU temperature
// sensor divider, the supply divider and the current shunt amplifier.
var adcPins = [...]machine.Pin{machine.A0, machine.A1, machine.A2, machine.A3}
