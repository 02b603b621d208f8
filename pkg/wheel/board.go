package wheel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/itohio/furball/pkg/config"
	"github.com/itohio/furball/pkg/segment"
)

// MCP3008 channels are 10 bit; readings are shifted to the int16 range the
// firmware reports.
const mcp3008Shift = 5

type txer interface {
	Tx(w, r []byte) error
}

type levelReader interface {
	Read() gpio.Level
}

// Board samples an MCP3008 on SPI and the tally button on a GPIO pin of the
// host itself, e.g. a Raspberry Pi mounted next to the wheel.
type Board struct {
	cfg *config.BoardConfig

	port   spi.PortCloser
	adc    txer
	button levelReader
	start  time.Time

	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// NewBoard creates a board device.
func NewBoard(cfg *config.BoardConfig) *Board {
	ctx, cancel := context.WithCancel(context.Background())

	return &Board{
		cfg:     cfg,
		samples: make(chan RawSample, DefaultBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect initializes periph, opens the SPI bus and the button pin and
// starts sampling.
func (b *Board) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return fmt.Errorf("already connected")
	}
	if b.ctx.Err() != nil {
		return fmt.Errorf("device closed")
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	port, err := spireg.Open(b.cfg.SPI)
	if err != nil {
		return fmt.Errorf("failed to open SPI %q: %w", b.cfg.SPI, err)
	}

	conn, err := port.Connect(physic.Frequency(b.cfg.SPISpeedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("failed to configure SPI: %w", err)
	}

	pin := gpioreg.ByName(b.cfg.Button)
	if pin == nil {
		port.Close()
		return fmt.Errorf("unknown button pin %q", b.cfg.Button)
	}
	if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
		port.Close()
		return fmt.Errorf("failed to configure button pin %s: %w", b.cfg.Button, err)
	}

	b.port = port
	b.adc = conn
	b.button = pin
	b.start = time.Now()
	b.connected = true

	go b.sampleLoop()

	log.Info().Str("spi", b.cfg.SPI).Str("button", b.cfg.Button).Msg("board connected")
	return nil
}

// Close stops sampling and releases the SPI bus.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil
	}

	b.cancel()
	b.connected = false
	close(b.samples)

	if b.port != nil {
		if err := b.port.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing SPI port")
		}
	}
	b.port = nil

	return nil
}

// Samples returns the channel for reading samples.
func (b *Board) Samples() <-chan RawSample {
	return b.samples
}

// IsConnected returns whether the device is currently connected.
func (b *Board) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Board) sampleLoop() {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case now := <-ticker.C:
			b.mu.RLock()
			if !b.connected {
				b.mu.RUnlock()
				return
			}
			sample, err := readSample(b.adc, b.button, b.cfg.Channels)
			if err != nil {
				b.mu.RUnlock()
				log.Warn().Err(err).Msg("failed to read ADC")
				continue
			}
			sample.Millis = uint32(now.Sub(b.start) / time.Millisecond)

			select {
			case b.samples <- sample:
			default:
				log.Warn().Msg("samples channel full, dropping sample")
			}
			b.mu.RUnlock()
		}
	}
}

// readSample reads all sensor channels in one pass, then the button.
func readSample(adc txer, button levelReader, channels [segment.Channels]int) (RawSample, error) {
	var s RawSample
	w := make([]byte, 3)
	r := make([]byte, 3)
	for i, ch := range channels {
		mcp3008Request(w, ch)
		if err := adc.Tx(w, r); err != nil {
			return RawSample{}, fmt.Errorf("channel %d: %w", ch, err)
		}
		s.Reading.Channels[i] = mcp3008Value(r)
	}
	s.Button = button.Read() == gpio.High
	return s, nil
}

// mcp3008Request fills w with a single-ended conversion request.
func mcp3008Request(w []byte, ch int) {
	w[0] = 0x01
	w[1] = 0x80 | byte(ch&0x07)<<4
	w[2] = 0x00
}

func mcp3008Value(r []byte) int16 {
	v := uint16(r[1]&0x03)<<8 | uint16(r[2])
	return int16(v << mcp3008Shift)
}
