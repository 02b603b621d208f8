// Package segment turns four analog sensor readings into the 4-bit pattern
// printed on the wheel rim.
package segment

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Channels is the number of analog sensors.
const Channels = 4

// Reading is one snapshot of all sensor channels, taken in a single pass.
type Reading struct {
	Channels [Channels]int16
}

// Config holds the thresholding and polling parameters.
type Config struct {
	Threshold    int16         // bit is set when the reading is >= Threshold
	MaxReading   int16         // readings are clamped to [0, MaxReading]
	ClampSlack   int16         // readings below -ClampSlack or above MaxReading are anomalies
	PollInterval time.Duration // minimum time between accepted samples
}

// Pack thresholds every channel and packs the bits with channel 0 as the
// least significant bit.
func Pack(r Reading, threshold int16) uint8 {
	var code uint8
	for i, v := range r.Channels {
		if v >= threshold {
			code |= 1 << i
		}
	}
	return code
}

// Sampler throttles incoming readings to the poll interval, validates them and
// produces segment codes. It does not keep any distance state.
type Sampler struct {
	cfg      Config
	interval uint32 // shortest accepted gap in milliseconds

	lastPoll  uint32
	polled    bool
	anomalies uint64
}

// PollJitter is how much earlier than the poll interval a reading may arrive
// and still be accepted. Millisecond stamps are truncated, so a source ticking
// at exactly the poll interval reports gaps one millisecond short.
const PollJitter = time.Millisecond

// NewSampler creates a sampler.
func NewSampler(cfg Config) *Sampler {
	interval := uint32((cfg.PollInterval - PollJitter) / time.Millisecond)
	if interval == 0 {
		interval = 1
	}
	return &Sampler{
		cfg:      cfg,
		interval: interval,
	}
}

// Poll accepts the reading taken at millis if the poll interval has elapsed
// since the previously accepted one and returns its segment code.
// A counter that steps backwards was restarted and is accepted as a fresh start.
// ok is false when the reading was dropped by the throttle.
func (s *Sampler) Poll(millis uint32, r Reading) (code uint8, ok bool) {
	if s.polled && int32(millis-s.lastPoll) >= 0 && millis-s.lastPoll < s.interval {
		return 0, false
	}
	s.polled = true
	s.lastPoll = millis

	return Pack(s.clamp(r), s.cfg.Threshold), true
}

// Anomalies returns the number of channel readings that were out of range.
func (s *Sampler) Anomalies() uint64 {
	return s.anomalies
}

// clamp limits every channel to [0, MaxReading], counting readings that are
// further out than ADC noise explains.
func (s *Sampler) clamp(r Reading) Reading {
	for i, v := range r.Channels {
		switch {
		case v < 0:
			if v < -s.cfg.ClampSlack {
				s.anomaly(i, v)
			}
			r.Channels[i] = 0
		case v > s.cfg.MaxReading:
			s.anomaly(i, v)
			r.Channels[i] = s.cfg.MaxReading
		}
	}
	return r
}

func (s *Sampler) anomaly(channel int, v int16) {
	s.anomalies++
	log.Debug().Int("channel", channel).Int16("reading", v).Msg("sensor reading out of range")
}
