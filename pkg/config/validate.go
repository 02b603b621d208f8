package config

import (
	"errors"
	"fmt"
	"time"
)

// MinPollInterval is the shortest accepted sensor poll interval.
const MinPollInterval = 10 * time.Millisecond

// MaxMockNoise bounds mock.noise_level so simulated segments stay on their
// side of the threshold.
const MaxMockNoise = 0.25

// Validate checks the configuration for values the pipeline cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	switch cfg.Device.Source {
	case SourceSerial:
		if cfg.Device.Serial.Port == "" {
			return errors.New("config: device.serial.port required")
		}
	case SourceBoard:
		seen := make(map[int]bool, len(cfg.Device.Board.Channels))
		for i, ch := range cfg.Device.Board.Channels {
			if ch < 0 || ch > 7 {
				return fmt.Errorf("config: device.board.channels[%d]=%d out of range 0..7", i, ch)
			}
			if seen[ch] {
				return fmt.Errorf("config: device.board.channels[%d]=%d used twice", i, ch)
			}
			seen[ch] = true
		}
		if cfg.Device.Board.Interval <= 0 {
			return errors.New("config: device.board.interval must be > 0")
		}
	case SourceMock:
		if cfg.Mock.SampleRate <= 0 {
			return errors.New("config: mock.sample_rate must be > 0")
		}
		if cfg.Mock.NoiseLevel < 0 || cfg.Mock.NoiseLevel >= MaxMockNoise {
			return fmt.Errorf("config: mock.noise_level %v must be in [0, %v)", cfg.Mock.NoiseLevel, MaxMockNoise)
		}
	default:
		return fmt.Errorf("config: unknown device.source %q", cfg.Device.Source)
	}

	if cfg.Sensor.MaxReading <= 0 {
		return errors.New("config: sensor.max_reading must be > 0")
	}
	if cfg.Sensor.Threshold <= 0 || cfg.Sensor.Threshold > cfg.Sensor.MaxReading {
		return fmt.Errorf("config: sensor.threshold %d outside (0, %d]", cfg.Sensor.Threshold, cfg.Sensor.MaxReading)
	}
	if cfg.Sensor.ClampSlack < 0 {
		return errors.New("config: sensor.clamp_slack must be >= 0")
	}
	if cfg.Sensor.PollInterval < MinPollInterval {
		return fmt.Errorf("config: sensor.poll_interval %v below %v", cfg.Sensor.PollInterval, MinPollInterval)
	}

	if cfg.Wheel.SegmentLength <= 0 {
		return errors.New("config: wheel.segment_length must be > 0")
	}
	// Only one segment boundary may pass the sensors between two polls.
	if cfg.Wheel.MaxSegmentRate <= 0 {
		return errors.New("config: wheel.max_segment_rate must be > 0")
	}
	if cfg.Wheel.MaxSegmentRate*cfg.Sensor.PollInterval.Seconds() > 1 {
		return fmt.Errorf("config: poll_interval %v too long for max_segment_rate %.1f/s (more than one segment per poll)",
			cfg.Sensor.PollInterval, cfg.Wheel.MaxSegmentRate)
	}

	if cfg.Clock.FlushEveryMinutes <= 0 || 60%cfg.Clock.FlushEveryMinutes != 0 {
		return fmt.Errorf("config: clock.flush_every_minutes %d must divide 60", cfg.Clock.FlushEveryMinutes)
	}
	if _, err := time.Parse(time.RFC3339, cfg.Clock.Start); err != nil {
		return fmt.Errorf("config: clock.start: %w", err)
	}

	if cfg.Telemetry.Topic == "" {
		return errors.New("config: telemetry.topic required")
	}
	switch cfg.Telemetry.Sink {
	case SinkMQTT:
		if cfg.Telemetry.MQTT.Broker == "" {
			return errors.New("config: telemetry.mqtt.broker required")
		}
		if cfg.Telemetry.MQTT.QoS > 2 {
			return fmt.Errorf("config: telemetry.mqtt.qos %d must be 0, 1 or 2", cfg.Telemetry.MQTT.QoS)
		}
	case SinkFile:
		if cfg.Telemetry.File == "" {
			return errors.New("config: telemetry.file required")
		}
	default:
		return fmt.Errorf("config: unknown telemetry.sink %q", cfg.Telemetry.Sink)
	}

	switch cfg.TimeSource.Kind {
	case TimeDaytime, TimeNTP:
		if cfg.TimeSource.Address == "" {
			return fmt.Errorf("config: time_source.address required for %s", cfg.TimeSource.Kind)
		}
	case TimeSystem:
	default:
		return fmt.Errorf("config: unknown time_source.kind %q", cfg.TimeSource.Kind)
	}

	return nil
}
