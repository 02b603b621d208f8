//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 10 // one line per interval, matches the host poll interval

	// SPI configuration for the MCP3008
	SPI_FREQUENCY = 1000000 // MCP3008 is rated 1.35 MHz at 3.3V
	PIN_ADC_CS    = machine.D3

	// Manual tally button, active high with an external pull-down
	PIN_BUTTON = machine.D0

	// Serial configuration
	// Format "millis,a0,a1,a2,a3,button\n"
	// Example: "4294967295,32736,32736,32736,32736,1\n" = 38 bytes max per line
	// 100 lines/sec * 38 bytes/line = 3,800 bytes/sec
	// 115200 provides ~3x headroom (11,520 bytes/sec max)
	UART_BAUD_RATE = 115200
)

// Sensor order on the MCP3008: sensor 0 (code LSB) on CH0.
const NUM_SENSORS = 4
