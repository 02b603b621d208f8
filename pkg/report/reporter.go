// Package report converts accumulated segments into a distance payload and
// publishes it.
package report

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/itohio/furball/pkg/distance"
)

// MaxPayload bounds the encoded payload.
const MaxPayload = 100

// Publisher delivers a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Config holds reporting parameters.
type Config struct {
	Topic         string
	SegmentLength float64 // length units per segment
	MinSegments   uint32  // flushes below this count are skipped and keep the segments
}

// Result describes one flush.
type Result struct {
	Segments  uint32
	Distance  uint32
	Payload   []byte
	Published bool
	Skipped   bool
	Err       error
}

// Payload is the telemetry message body.
type Payload struct {
	Distance uint32 `json:"distance"`
}

// Reporter flushes a distance counter to a publisher.
type Reporter struct {
	cfg     Config
	counter *distance.Counter
	pub     Publisher
}

// New creates a reporter.
func New(cfg Config, counter *distance.Counter, pub Publisher) *Reporter {
	return &Reporter{
		cfg:     cfg,
		counter: counter,
		pub:     pub,
	}
}

// Distance converts segments to whole length units, truncating the fraction.
func Distance(segments uint32, segmentLength float64) uint32 {
	return uint32(float64(segments) * segmentLength)
}

// Encode renders the payload for a distance.
func Encode(d uint32) ([]byte, error) {
	data, err := json.Marshal(Payload{Distance: d})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	if len(data) > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(data), MaxPayload)
	}
	return data, nil
}

// Flush drains the counter and publishes the distance travelled since the
// previous flush. The counter is reset whether or not publishing succeeds;
// a failed flush loses its segments.
func (r *Reporter) Flush() Result {
	if r.cfg.MinSegments > 0 && r.counter.Load() < r.cfg.MinSegments {
		return Result{Segments: r.counter.Load(), Skipped: true}
	}

	res := Result{Segments: r.counter.Drain()}
	res.Distance = Distance(res.Segments, r.cfg.SegmentLength)

	res.Payload, res.Err = Encode(res.Distance)
	if res.Err != nil {
		log.Error().Err(res.Err).Uint32("segments", res.Segments).Msg("distance dropped")
		return res
	}

	if err := r.pub.Publish(r.cfg.Topic, res.Payload); err != nil {
		res.Err = fmt.Errorf("failed to publish distance: %w", err)
		log.Warn().Err(err).Uint32("distance", res.Distance).Str("topic", r.cfg.Topic).Msg("distance dropped")
		return res
	}

	res.Published = true
	log.Info().Uint32("segments", res.Segments).Uint32("distance", res.Distance).Str("topic", r.cfg.Topic).Msg("distance published")
	return res
}
