package wheel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/furball/pkg/config"
	"github.com/itohio/furball/pkg/gray"
	"github.com/itohio/furball/pkg/segment"
)

const (
	// Reflectance levels as a fraction of full scale.
	mockHigh = 0.75
	mockLow  = 0.08

	mockPressLength = 300 * time.Millisecond
)

// Mock simulates a pet running on the wheel in bursts.
type Mock struct {
	cfg        *config.MockConfig
	maxReading int16

	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Simulation state, owned by the generator.
	elapsed  time.Duration
	position float32 // segments travelled, modulo gray.Positions
}

// NewMock creates a simulated wheel.
func NewMock(cfg *config.MockConfig, maxReading int16) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	if maxReading <= 0 {
		maxReading = 32767
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Mock{
		cfg:        cfg,
		maxReading: maxReading,
		samples:    make(chan RawSample, DefaultBufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Connect starts generating samples.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	if m.ctx.Err() != nil {
		return fmt.Errorf("device closed")
	}

	m.connected = true
	go m.generateSamples()

	return nil
}

// Close stops the simulation and closes the samples channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false
	close(m.samples)

	return nil
}

// Samples returns the channel for reading samples.
func (m *Mock) Samples() <-chan RawSample {
	return m.samples
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Mock) generateSamples() {
	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			sample := m.step(m.cfg.SampleRate)

			m.mu.RLock()
			if !m.connected {
				m.mu.RUnlock()
				return
			}
			select {
			case m.samples <- sample:
			default:
				// Channel full, skip
			}
			m.mu.RUnlock()
		}
	}
}

// step advances the simulation by dt and returns the resulting sample.
func (m *Mock) step(dt time.Duration) RawSample {
	m.elapsed += dt

	if m.running() {
		m.position += float32(m.cfg.Speed * dt.Seconds())
		m.position = math32.Mod(m.position, gray.Positions)
	}

	index := int(math32.Floor(m.position)) % gray.Positions
	code := gray.Table[index]

	var s RawSample
	s.Millis = uint32(m.elapsed / time.Millisecond)
	for ch := 0; ch < segment.Channels; ch++ {
		level := float32(mockLow)
		if code&(1<<ch) != 0 {
			level = mockHigh
		}
		level = math32.Max(0, math32.Min(level+m.noise(ch), 1))
		s.Reading.Channels[ch] = int16(level * float32(m.maxReading))
	}
	s.Button = m.pressed()

	return s
}

// running reports whether the simulated pet is on the wheel.
func (m *Mock) running() bool {
	cycle := m.cfg.RunPeriod + m.cfg.RestPeriod
	if cycle <= 0 {
		return true
	}
	return m.elapsed%cycle < m.cfg.RunPeriod
}

func (m *Mock) pressed() bool {
	if m.cfg.PressEvery <= 0 {
		return false
	}
	phase := m.elapsed % m.cfg.PressEvery
	return m.elapsed >= m.cfg.PressEvery && phase < mockPressLength
}

// noise is deterministic so runs are reproducible.
func (m *Mock) noise(ch int) float32 {
	t := float32(m.elapsed.Seconds())
	phase := float32(ch) * math32.Pi / 2
	return float32(m.cfg.NoiseLevel) * 0.5 * (math32.Sin(t*37+phase) + math32.Sin(t*91-phase))
}
