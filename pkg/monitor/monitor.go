// Package monitor runs the wheel pipeline: one goroutine takes every sample
// through the clock, the tally, the segment sampler and the reporter.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/itohio/furball/pkg/clock"
	"github.com/itohio/furball/pkg/config"
	"github.com/itohio/furball/pkg/distance"
	"github.com/itohio/furball/pkg/report"
	"github.com/itohio/furball/pkg/segment"
	"github.com/itohio/furball/pkg/status"
	"github.com/itohio/furball/pkg/tally"
	"github.com/itohio/furball/pkg/timesource"
	"github.com/itohio/furball/pkg/wheel"
)

var _ status.Provider = (*Monitor)(nil)

// SampleSource delivers samples until the channel is closed.
type SampleSource interface {
	Samples() <-chan wheel.RawSample
}

// Stats are loop counters for diagnostics.
type Stats struct {
	Samples   uint64
	Polls     uint64
	Segments  uint64 // total since start, never reset
	Misses    uint64
	Anomalies uint64
	Flushes   uint64
	Failures  uint64
	Resyncs   uint64
}

// Monitor owns all pipeline state. Only Snapshot, Stats and OnFlush may be
// called from other goroutines.
type Monitor struct {
	source  SampleSource
	times   timesource.Source
	counter *distance.Counter

	sampler  *segment.Sampler
	acc      *distance.Accumulator
	tally    *tally.Tally
	clock    *clock.Clock
	reporter *report.Reporter

	resyncPending bool

	mu        sync.RWMutex
	clockText string
	stats     Stats

	cbMu      sync.RWMutex
	callbacks []func(report.Result)
}

// New creates a monitor reading from source, publishing through pub and
// resyncing its clock from times.
func New(cfg *config.Config, source SampleSource, pub report.Publisher, times timesource.Source) (*Monitor, error) {
	start, err := time.Parse(time.RFC3339, cfg.Clock.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid clock start: %w", err)
	}

	counter := &distance.Counter{}
	m := &Monitor{
		source:  source,
		times:   times,
		counter: counter,
		sampler: segment.NewSampler(segment.Config{
			Threshold:    cfg.Sensor.Threshold,
			MaxReading:   cfg.Sensor.MaxReading,
			ClampSlack:   cfg.Sensor.ClampSlack,
			PollInterval: cfg.Sensor.PollInterval,
		}),
		acc:   distance.NewAccumulator(counter),
		tally: &tally.Tally{},
		clock: clock.New(start.UTC(), cfg.Clock.FlushEveryMinutes),
		reporter: report.New(report.Config{
			Topic:         cfg.Telemetry.Topic,
			SegmentLength: cfg.Wheel.SegmentLength,
			MinSegments:   cfg.Wheel.MinSegments,
		}, counter, pub),
		resyncPending: true,
	}
	m.clockText = m.clock.String()

	return m, nil
}

// OnFlush registers a callback invoked on the loop goroutine after every
// flush attempt.
func (m *Monitor) OnFlush(cb func(report.Result)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Run processes samples until ctx is done or the sample channel is closed.
func (m *Monitor) Run(ctx context.Context) error {
	samples := m.source.Samples()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-samples:
			if !ok {
				log.Info().Msg("sample source closed")
				return nil
			}
			m.Process(ctx, s)
		}
	}
}

// Process runs one pass of the loop for sample s.
func (m *Monitor) Process(ctx context.Context, s wheel.RawSample) {
	m.clock.Update(s.Millis)

	if m.clock.TakeResync() {
		m.resyncPending = true
	}
	if m.resyncPending {
		m.resync(ctx, s.Millis)
	}

	m.mu.Lock()
	m.clockText = m.clock.String()
	m.stats.Samples++
	m.mu.Unlock()

	if m.tally.Update(s.Button) {
		log.Info().Uint32("count", m.tally.Count()).Msg("tally pressed")
	}

	if code, ok := m.sampler.Poll(s.Millis, s.Reading); ok {
		changed := m.acc.Update(code)

		m.mu.Lock()
		m.stats.Polls++
		if changed {
			m.stats.Segments++
		}
		m.stats.Misses = m.acc.Misses()
		m.stats.Anomalies = m.sampler.Anomalies()
		m.mu.Unlock()
	}

	if m.clock.TakeFlush() {
		m.flush()
	}
}

// resync replaces the clock with the time source's time. A failed fetch
// keeps the current clock; the next daily rollover tries again.
func (m *Monitor) resync(ctx context.Context, millis uint32) {
	m.resyncPending = false
	if m.times == nil {
		return
	}

	t, err := m.times.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("clock", m.clock.String()).Msg("time resync failed")
		return
	}

	m.clock.Set(t.UTC(), millis)

	m.mu.Lock()
	m.stats.Resyncs++
	m.mu.Unlock()

	log.Info().Str("clock", m.clock.String()).Msg("clock resynced")
}

func (m *Monitor) flush() {
	res := m.reporter.Flush()

	m.mu.Lock()
	if !res.Skipped {
		m.stats.Flushes++
		if res.Err != nil {
			m.stats.Failures++
		}
	}
	m.mu.Unlock()

	m.cbMu.RLock()
	callbacks := m.callbacks
	m.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb(res)
	}
}

// Snapshot returns what the status page shows.
func (m *Monitor) Snapshot() status.Snapshot {
	m.mu.RLock()
	clockText := m.clockText
	m.mu.RUnlock()

	return status.Snapshot{
		Segments: m.counter.Load(),
		Tally:    m.tally.Count(),
		Clock:    clockText,
	}
}

// Stats returns a copy of the loop counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
