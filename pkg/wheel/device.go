// Package wheel provides sample sources for the exercise wheel: the sensor
// firmware over a serial link, an ADC wired straight to the host, and a
// simulated wheel.
package wheel

import (
	"fmt"

	"github.com/itohio/furball/pkg/config"
	"github.com/itohio/furball/pkg/segment"
)

// DefaultBufferSize is the default size for the samples channel buffer.
const DefaultBufferSize = 100

// RawSample is one pass over all sensor channels and the tally button.
type RawSample struct {
	Millis  uint32 // milliseconds since the source started, wraps at 2^32
	Reading segment.Reading
	Button  bool // tally button pressed
}

// Device defines the interface for sample sources (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Samples() <-chan RawSample
	IsConnected() bool
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Board)(nil)
	_ Device = (*Mock)(nil)
)

// New creates the device selected by cfg.
func New(cfg *config.Config) (Device, error) {
	switch cfg.Device.Source {
	case config.SourceSerial:
		return NewSerial(cfg.Device.Serial.Port, cfg.Device.Serial.BaudRate, DefaultBufferSize), nil
	case config.SourceBoard:
		return NewBoard(&cfg.Device.Board), nil
	case config.SourceMock:
		return NewMock(&cfg.Mock, cfg.Sensor.MaxReading), nil
	default:
		return nil, fmt.Errorf("unknown device source %q", cfg.Device.Source)
	}
}
