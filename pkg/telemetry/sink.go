// Package telemetry delivers flushed distance payloads.
package telemetry

import (
	"fmt"

	"github.com/itohio/furball/pkg/config"
)

// Sink publishes a payload to a topic. Payloads longer than
// report.MaxPayload are rejected.
type Sink interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// Ensure implementations satisfy Sink.
var (
	_ Sink = (*MQTT)(nil)
	_ Sink = (*File)(nil)
)

// New creates the sink selected by cfg.
func New(cfg *config.TelemetryConfig) (Sink, error) {
	switch cfg.Sink {
	case config.SinkMQTT:
		return NewMQTT(&cfg.MQTT)
	case config.SinkFile:
		return OpenFile(cfg.File)
	default:
		return nil, fmt.Errorf("unknown telemetry sink %q", cfg.Sink)
	}
}
