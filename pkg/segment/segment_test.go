package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Threshold:    1000,
		MaxReading:   4000,
		ClampSlack:   10,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestPack(t *testing.T) {
	tests := []struct {
		name     string
		channels [Channels]int16
		want     uint8
	}{
		{"all dark", [Channels]int16{0, 0, 0, 0}, 0x0},
		{"all bright", [Channels]int16{2000, 2000, 2000, 2000}, 0xF},
		{"channel 0 is lsb", [Channels]int16{2000, 0, 0, 0}, 0x1},
		{"channel 3 is msb", [Channels]int16{0, 0, 0, 2000}, 0x8},
		{"exactly at threshold", [Channels]int16{1000, 999, 1000, 999}, 0x5},
		{"mixed", [Channels]int16{0, 1500, 1500, 0}, 0x6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pack(Reading{Channels: tt.channels}, 1000))
		})
	}
}

func TestSampler_Throttle(t *testing.T) {
	s := NewSampler(testConfig())
	bright := Reading{Channels: [Channels]int16{2000, 0, 0, 0}}

	code, ok := s.Poll(100, bright)
	assert.True(t, ok, "first reading is always accepted")
	assert.Equal(t, uint8(0x1), code)

	_, ok = s.Poll(105, bright)
	assert.False(t, ok, "reading inside the poll interval is dropped")

	_, ok = s.Poll(108, bright)
	assert.False(t, ok)

	_, ok = s.Poll(110, bright)
	assert.True(t, ok, "reading exactly one interval later is accepted")

	_, ok = s.Poll(115, bright)
	assert.False(t, ok, "interval restarts from the accepted reading")
}

func TestSampler_ToleratesTruncatedStamps(t *testing.T) {
	s := NewSampler(testConfig())
	r := Reading{}

	// A 10ms ticker stamped in whole milliseconds gives gaps of 10, 9 and 11.
	for _, ms := range []uint32{0, 10, 19, 30} {
		_, ok := s.Poll(ms, r)
		assert.True(t, ok, "reading at %dms", ms)
	}

	_, ok := s.Poll(38, r)
	assert.False(t, ok, "more than a millisecond early is still dropped")
}

func TestSampler_CounterRestart(t *testing.T) {
	s := NewSampler(testConfig())
	r := Reading{}

	_, ok := s.Poll(105_000, r)
	require.True(t, ok)

	_, ok = s.Poll(5, r)
	assert.True(t, ok, "restarted counter starts a fresh interval")

	_, ok = s.Poll(10, r)
	assert.False(t, ok)

	_, ok = s.Poll(15, r)
	assert.True(t, ok)
}

func TestSampler_ThrottleAcrossMillisWrap(t *testing.T) {
	s := NewSampler(testConfig())
	r := Reading{}

	_, ok := s.Poll(0xFFFFFFFA, r)
	assert.True(t, ok)

	_, ok = s.Poll(2, r)
	assert.False(t, ok, "8ms after the wrap")

	_, ok = s.Poll(4, r)
	assert.True(t, ok, "10ms after the wrap")
}

func TestSampler_Clamp(t *testing.T) {
	s := NewSampler(testConfig())

	code, ok := s.Poll(0, Reading{Channels: [Channels]int16{-5, 5000, -500, 1000}})
	assert.True(t, ok)
	// -5 and -500 clamp to 0, 5000 clamps to 4000.
	assert.Equal(t, uint8(0xA), code)
	assert.Equal(t, uint64(2), s.Anomalies(), "small negative noise is not an anomaly")
}

func TestSampler_ClampedReadingsStayBelowThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.Threshold = 1
	s := NewSampler(cfg)

	code, _ := s.Poll(0, Reading{Channels: [Channels]int16{-32768, -1, 0, 1}})
	assert.Equal(t, uint8(0x8), code)
	assert.Equal(t, uint64(1), s.Anomalies())
}
