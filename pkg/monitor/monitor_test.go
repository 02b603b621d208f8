package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/furball/pkg/config"
	"github.com/itohio/furball/pkg/gray"
	"github.com/itohio/furball/pkg/report"
	"github.com/itohio/furball/pkg/wheel"
)

type fakeSource struct {
	ch chan wheel.RawSample
}

func (f *fakeSource) Samples() <-chan wheel.RawSample { return f.ch }

type fakePublisher struct {
	payloads []string
	err      error
}

func (p *fakePublisher) Publish(_ string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, string(payload))
	return nil
}

type fakeTimes struct {
	times []time.Time
	err   error
	calls int
}

func (f *fakeTimes) Fetch(context.Context) (time.Time, error) {
	f.calls++
	if f.err != nil {
		return time.Time{}, f.err
	}
	t := f.times[0]
	if len(f.times) > 1 {
		f.times = f.times[1:]
	}
	return t, nil
}

// sampleAt builds the sample the sensors would report at position pos.
func sampleAt(millis uint32, pos int, button bool) wheel.RawSample {
	var s wheel.RawSample
	s.Millis = millis
	s.Button = button
	code := gray.Table[pos%gray.Positions]
	for ch := range s.Reading.Channels {
		if code&(1<<ch) != 0 {
			s.Reading.Channels[ch] = 20000
		} else {
			s.Reading.Channels[ch] = 1000
		}
	}
	return s
}

func newTestMonitor(t *testing.T, pub report.Publisher, times *fakeTimes) *Monitor {
	t.Helper()
	m, err := New(config.Default(), &fakeSource{}, pub, times)
	require.NoError(t, err)
	return m
}

func TestProcess_FlushesOnFifthMinute(t *testing.T) {
	pub := &fakePublisher{}
	times := &fakeTimes{times: []time.Time{time.Date(2018, time.January, 1, 12, 34, 50, 0, time.UTC)}}
	m := newTestMonitor(t, pub, times)
	ctx := context.Background()

	// One segment every 100ms for 15s.
	for ms := uint32(0); ms <= 15_000; ms += 10 {
		m.Process(ctx, sampleAt(ms, int(ms/100), false))
		if ms == 10_000 {
			require.Equal(t, []string{`{"distance":78}`}, pub.payloads, "100 segments flushed at 12:35:00")
		}
	}

	assert.Equal(t, 1, times.calls, "startup resync only")
	assert.Equal(t, []string{`{"distance":78}`}, pub.payloads)
	assert.Equal(t, uint32(50), m.Snapshot().Segments)
	assert.Equal(t, "18-01-01 12:35:05", m.Snapshot().Clock)

	stats := m.Stats()
	assert.Equal(t, uint64(150), stats.Segments)
	assert.Equal(t, uint64(1), stats.Flushes)
	assert.Equal(t, uint64(1), stats.Resyncs)
	assert.Equal(t, uint64(1501), stats.Samples)
}

func TestProcess_StationaryWheelPublishesZero(t *testing.T) {
	pub := &fakePublisher{}
	times := &fakeTimes{times: []time.Time{time.Date(2018, time.January, 1, 12, 34, 59, 0, time.UTC)}}
	m := newTestMonitor(t, pub, times)

	for ms := uint32(0); ms <= 2_000; ms += 10 {
		m.Process(context.Background(), sampleAt(ms, 7, false))
	}
	assert.Equal(t, []string{`{"distance":0}`}, pub.payloads)
}

func TestProcess_PublishFailureLosesInterval(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	times := &fakeTimes{times: []time.Time{time.Date(2018, time.January, 1, 12, 34, 59, 0, time.UTC)}}
	m := newTestMonitor(t, pub, times)

	var results []report.Result
	m.OnFlush(func(r report.Result) { results = append(results, r) })

	for ms := uint32(0); ms <= 1_000; ms += 10 {
		m.Process(context.Background(), sampleAt(ms, int(ms/100), false))
	}

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, uint32(10), results[0].Segments)
	assert.Equal(t, uint32(0), m.Snapshot().Segments)
	assert.Equal(t, uint64(1), m.Stats().Failures)
}

func TestProcess_ResyncFailureKeepsClock(t *testing.T) {
	times := &fakeTimes{err: errors.New("no route to host")}
	m := newTestMonitor(t, &fakePublisher{}, times)

	m.Process(context.Background(), sampleAt(0, 0, false))
	m.Process(context.Background(), sampleAt(1000, 0, false))

	assert.Equal(t, 1, times.calls)
	assert.Equal(t, "18-01-01 12:33:01", m.Snapshot().Clock)
	assert.Equal(t, uint64(0), m.Stats().Resyncs)
}

func TestProcess_DailyResync(t *testing.T) {
	times := &fakeTimes{times: []time.Time{
		time.Date(2018, time.January, 1, 23, 59, 58, 0, time.UTC),
		time.Date(2019, time.June, 1, 8, 0, 0, 0, time.UTC),
	}}
	m := newTestMonitor(t, &fakePublisher{}, times)

	m.Process(context.Background(), sampleAt(0, 0, false))
	m.Process(context.Background(), sampleAt(1000, 0, false))
	assert.Equal(t, "18-01-01 23:59:59", m.Snapshot().Clock)

	m.Process(context.Background(), sampleAt(2000, 0, false))
	assert.Equal(t, 2, times.calls)
	assert.Equal(t, "19-06-01 08:00:00", m.Snapshot().Clock)

	m.Process(context.Background(), sampleAt(3000, 0, false))
	assert.Equal(t, "19-06-01 08:00:01", m.Snapshot().Clock)
}

func TestProcess_TallyCountsPresses(t *testing.T) {
	m := newTestMonitor(t, &fakePublisher{}, &fakeTimes{times: []time.Time{time.Now()}})

	pattern := []bool{false, true, true, true, false, false, true, false, true, true}
	for i, pressed := range pattern {
		m.Process(context.Background(), sampleAt(uint32(i*10), 0, pressed))
	}
	assert.Equal(t, uint32(3), m.Snapshot().Tally)
}

func TestProcess_FirmwareRestart(t *testing.T) {
	pub := &fakePublisher{}
	times := &fakeTimes{times: []time.Time{time.Date(2018, time.January, 1, 12, 34, 50, 0, time.UTC)}}
	m := newTestMonitor(t, pub, times)
	ctx := context.Background()

	m.Process(ctx, sampleAt(100_000, 0, false))
	m.Process(ctx, sampleAt(105_000, 1, false))
	require.Equal(t, "18-01-01 12:34:55", m.Snapshot().Clock)

	// The firmware rebooted and its counter starts over.
	m.Process(ctx, sampleAt(5, 2, false))
	assert.Equal(t, "18-01-01 12:34:55", m.Snapshot().Clock)
	assert.Equal(t, 1, times.calls, "no resync")
	assert.Empty(t, pub.payloads, "no flush")
	assert.Equal(t, uint64(3), m.Stats().Polls)
	assert.Equal(t, uint32(2), m.Snapshot().Segments)

	m.Process(ctx, sampleAt(1005, 3, false))
	assert.Equal(t, "18-01-01 12:34:56", m.Snapshot().Clock)
}

func TestProcess_PollThrottle(t *testing.T) {
	m := newTestMonitor(t, &fakePublisher{}, &fakeTimes{times: []time.Time{time.Now()}})

	// Samples 2ms apart; only every fifth one is polled at the 10ms interval.
	for i := 0; i < 50; i++ {
		m.Process(context.Background(), sampleAt(uint32(i*2), i, false))
	}
	stats := m.Stats()
	assert.Equal(t, uint64(50), stats.Samples)
	assert.Equal(t, uint64(10), stats.Polls)
	assert.Equal(t, uint64(9), stats.Segments)
}

func TestNew_InvalidStart(t *testing.T) {
	cfg := config.Default()
	cfg.Clock.Start = "yesterday"
	_, err := New(cfg, &fakeSource{}, &fakePublisher{}, nil)
	assert.Error(t, err)
}

func TestProcess_NoTimeSource(t *testing.T) {
	m, err := New(config.Default(), &fakeSource{}, &fakePublisher{}, nil)
	require.NoError(t, err)

	m.Process(context.Background(), sampleAt(0, 0, false))
	m.Process(context.Background(), sampleAt(1000, 0, false))
	assert.Equal(t, "18-01-01 12:33:01", m.Snapshot().Clock)
}

func TestRun_StopsWhenSourceCloses(t *testing.T) {
	src := &fakeSource{ch: make(chan wheel.RawSample, 10)}
	m, err := New(config.Default(), src, &fakePublisher{}, &fakeTimes{times: []time.Time{time.Now()}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		src.ch <- sampleAt(uint32(i*10), i, false)
	}
	close(src.ch)

	assert.NoError(t, m.Run(context.Background()))
	assert.Equal(t, uint64(5), m.Stats().Samples)
	assert.Equal(t, uint32(4), m.Snapshot().Segments)
}

func TestRun_StopsOnCancel(t *testing.T) {
	src := &fakeSource{ch: make(chan wheel.RawSample)}
	m, err := New(config.Default(), src, &fakePublisher{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
