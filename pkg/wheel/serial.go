package wheel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/itohio/furball/pkg/segment"
)

// DefaultBaudRate is the firmware's UART speed.
const DefaultBaudRate = 115200

// Port describes an available serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads samples streamed by the sensor firmware.
type Serial struct {
	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// NewSerial creates a serial device with the specified port, baud rate, and buffer size.
func NewSerial(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		samples:  make(chan RawSample, bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}
	if d.ctx.Err() != nil {
		return fmt.Errorf("device closed")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readSamples(port)

	log.Info().Str("port", d.port).Int("baud", d.baudRate).Msg("serial connected")
	return nil
}

// Close closes the port and the samples channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shutdown()
	return nil
}

// shutdown releases the port and closes the samples channel once.
// Callers hold d.mu.
func (d *Serial) shutdown() {
	if !d.connected {
		return
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Warn().Err(err).Str("port", d.port).Msg("error closing serial port")
		}
		d.conn = nil
	}

	d.connected = false
	close(d.samples)
}

// Samples returns the channel for reading samples.
func (d *Serial) Samples() <-chan RawSample {
	return d.samples
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Serial) readSamples(r io.Reader) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("panic in serial reader")
		}

		// The port went away underneath us; consumers see a closed channel.
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.connected {
			log.Warn().Str("port", d.port).Msg("serial port disconnected")
		}
		d.shutdown()
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			log.Debug().Err(err).Str("line", line).Msg("dropping malformed line")
			continue
		}

		if !d.deliver(sample) {
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && d.ctx.Err() == nil {
		log.Error().Err(err).Str("port", d.port).Msg("error reading from serial port")
	}
}

// deliver hands a sample to the consumer without blocking the reader.
// It returns false once the device is closed.
func (d *Serial) deliver(sample RawSample) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return false
	}
	select {
	case d.samples <- sample:
	default:
		log.Warn().Msg("samples channel full, dropping sample")
	}
	return true
}

// parseLine parses one firmware line.
// Format: millis,a0,a1,a2,a3,button
// Example: 123456,20011,512,19870,301,0
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2+segment.Channels {
		return RawSample{}, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d", 2+segment.Channels, len(parts))
	}

	millis, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid millis: %w", err)
	}

	var s RawSample
	s.Millis = uint32(millis)

	for i := 0; i < segment.Channels; i++ {
		v, err := strconv.ParseInt(parts[1+i], 10, 16)
		if err != nil {
			return RawSample{}, fmt.Errorf("invalid channel %d: %w", i, err)
		}
		s.Reading.Channels[i] = int16(v)
	}

	switch parts[1+segment.Channels] {
	case "0":
	case "1":
		s.Button = true
	default:
		return RawSample{}, fmt.Errorf("invalid button state %q", parts[1+segment.Channels])
	}

	return s, nil
}
