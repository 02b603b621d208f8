//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/mcp3008"
)

var (
	adc     *mcp3008.Device
	sensors [NUM_SENSORS]mcp3008.ADCPin
	uart    = machine.UART0

	start    time.Time
	lastRead time.Time
)

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	machine.SPI0.Configure(machine.SPIConfig{
		Frequency: SPI_FREQUENCY,
		Mode:      0,
	})
	PIN_ADC_CS.Configure(machine.PinConfig{Mode: machine.PinOutput})

	adc = mcp3008.New(machine.SPI0, PIN_ADC_CS)
	adc.Configure()
	sensors = [NUM_SENSORS]mcp3008.ADCPin{adc.CH0, adc.CH1, adc.CH2, adc.CH3}

	PIN_BUTTON.Configure(machine.PinConfig{Mode: machine.PinInput})

	start = time.Now()
	lastRead = start

	for {
		now := time.Now()
		if now.Sub(lastRead) >= SAMPLE_INTERVAL_MS*time.Millisecond {
			lastRead = now
			outputSample(uint32(now.Sub(start) / time.Millisecond))
		}

		time.Sleep(100 * time.Microsecond)
	}
}

// outputSample reads all sensors in one pass, then the button, and prints
// "millis,a0,a1,a2,a3,button\n".
func outputSample(millis uint32) {
	var readings [NUM_SENSORS]int16
	for i := range sensors {
		// Get scales the 10 bit result to 16 bits; halve it into int16 range.
		readings[i] = int16(sensors[i].Get() >> 1)
	}
	pressed := PIN_BUTTON.Get()

	print(millis)
	for _, r := range readings {
		print(",")
		print(r)
	}
	if pressed {
		print(",1\n")
	} else {
		print(",0\n")
	}
}
