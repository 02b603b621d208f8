package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Device sources.
const (
	SourceSerial = "serial"
	SourceBoard  = "board"
	SourceMock   = "mock"
)

// Telemetry sinks.
const (
	SinkMQTT = "mqtt"
	SinkFile = "file"
)

// Time sources.
const (
	TimeDaytime = "daytime"
	TimeNTP     = "ntp"
	TimeSystem  = "system"
)

// Config represents the application configuration.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Wheel      WheelConfig      `yaml:"wheel"`
	Clock      ClockConfig      `yaml:"clock"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	TimeSource TimeSourceConfig `yaml:"time_source"`
	Status     StatusConfig     `yaml:"status"`
	Mock       MockConfig       `yaml:"mock"`
	Log        LogConfig        `yaml:"log"`
}

// DeviceConfig selects where samples come from.
type DeviceConfig struct {
	Source string       `yaml:"source"` // serial, board or mock
	Serial SerialConfig `yaml:"serial"`
	Board  BoardConfig  `yaml:"board"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// BoardConfig describes an ADC and button wired straight to the host.
type BoardConfig struct {
	SPI        string        `yaml:"spi"`         // spireg name, empty for the first bus
	SPISpeedHz int64         `yaml:"spi_speed_hz"` // MCP3008 is rated 1.35 MHz at 3.3V
	Channels   [4]int        `yaml:"channels"`    // ADC channel per sensor, sensor 0 first
	Button     string        `yaml:"button"`      // gpioreg name of the tally button
	Interval   time.Duration `yaml:"interval"`
}

// SensorConfig contains analog thresholding parameters.
type SensorConfig struct {
	Threshold    int16         `yaml:"threshold"`     // ADC_THRESHOLD: bit is set when reading >= threshold
	MaxReading   int16         `yaml:"max_reading"`   // readings are clamped to [0, max_reading]
	ClampSlack   int16         `yaml:"clamp_slack"`   // negative readings below -slack count as anomalies
	PollInterval time.Duration `yaml:"poll_interval"` // minimum time between accepted samples
}

// WheelConfig contains the physical wheel parameters.
type WheelConfig struct {
	SegmentLength  float64 `yaml:"segment_length"`   // length units per segment
	MaxSegmentRate float64 `yaml:"max_segment_rate"` // fastest expected segments per second
	MinSegments    uint32  `yaml:"min_segments"`     // skip flushes below this count (0 = always flush)
}

// ClockConfig contains the software clock parameters.
type ClockConfig struct {
	FlushEveryMinutes int    `yaml:"flush_every_minutes"`
	Start             string `yaml:"start"` // RFC3339 time used until the first resync succeeds
}

// TelemetryConfig selects and configures the telemetry sink.
type TelemetryConfig struct {
	Sink  string     `yaml:"sink"` // mqtt or file
	Topic string     `yaml:"topic"`
	MQTT  MQTTConfig `yaml:"mqtt"`
	File  string     `yaml:"file"`
}

// MQTTConfig contains broker connection parameters.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	Retain         bool          `yaml:"retain"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// TimeSourceConfig selects the wall clock used to resync the software clock.
type TimeSourceConfig struct {
	Kind    string        `yaml:"kind"` // daytime, ntp or system
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

// StatusConfig contains the status page parameters.
type StatusConfig struct {
	Listen  string `yaml:"listen"`
	WebRoot string `yaml:"web_root"`
}

// MockConfig contains simulated wheel parameters.
type MockConfig struct {
	Speed      float64       `yaml:"speed"`       // segments per second while running
	RunPeriod  time.Duration `yaml:"run_period"`  // how long the pet runs
	RestPeriod time.Duration `yaml:"rest_period"` // how long it rests between runs
	NoiseLevel float64       `yaml:"noise_level"` // noise as a fraction of full scale
	SampleRate time.Duration `yaml:"sample_rate"`
	PressEvery time.Duration `yaml:"press_every"` // simulated tally button presses, 0 = never
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Source: SourceSerial,
			Serial: SerialConfig{
				Port:     "/dev/ttyACM0",
				BaudRate: 115200,
			},
			Board: BoardConfig{
				SPISpeedHz: 1000000,
				Channels:   [4]int{0, 1, 2, 3},
				Button:     "GPIO17",
				Interval:   10 * time.Millisecond,
			},
		},
		Sensor: SensorConfig{
			Threshold:    12000, // roughly 1.5V with the ADC scaled to 16 bit
			MaxReading:   32767,
			ClampSlack:   64,
			PollInterval: 10 * time.Millisecond,
		},
		Wheel: WheelConfig{
			SegmentLength:  0.78,
			MaxSegmentRate: 100,
			MinSegments:    0,
		},
		Clock: ClockConfig{
			FlushEveryMinutes: 5,
			Start:             "2018-01-01T12:33:00Z",
		},
		Telemetry: TelemetryConfig{
			Sink:  SinkMQTT,
			Topic: "furball/distance",
			MQTT: MQTTConfig{
				Broker:         "tcp://localhost:1883",
				ClientID:       "furball",
				QoS:            1,
				RetryInterval:  5 * time.Second,
				ConnectTimeout: 5 * time.Second,
				PublishTimeout: 5 * time.Second,
			},
			File: "distance.log",
		},
		TimeSource: TimeSourceConfig{
			Kind:    TimeDaytime,
			Address: "time.nist.gov:13",
			Timeout: 5 * time.Second,
		},
		Status: StatusConfig{
			Listen:  ":8080",
			WebRoot: "www",
		},
		Mock: MockConfig{
			Speed:      12,
			RunPeriod:  20 * time.Second,
			RestPeriod: 40 * time.Second,
			NoiseLevel: 0.02,
			SampleRate: 10 * time.Millisecond,
			PressEvery: 0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero values left behind by a partial file.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Source == "" {
		c.Device.Source = def.Device.Source
	}
	if c.Device.Serial.Port == "" {
		c.Device.Serial.Port = def.Device.Serial.Port
	}
	if c.Device.Serial.BaudRate == 0 {
		c.Device.Serial.BaudRate = def.Device.Serial.BaudRate
	}
	if c.Device.Board.SPISpeedHz == 0 {
		c.Device.Board.SPISpeedHz = def.Device.Board.SPISpeedHz
	}
	if c.Device.Board.Button == "" {
		c.Device.Board.Button = def.Device.Board.Button
	}
	if c.Device.Board.Interval == 0 {
		c.Device.Board.Interval = def.Device.Board.Interval
	}

	if c.Sensor.Threshold == 0 {
		c.Sensor.Threshold = def.Sensor.Threshold
	}
	if c.Sensor.MaxReading == 0 {
		c.Sensor.MaxReading = def.Sensor.MaxReading
	}
	if c.Sensor.PollInterval == 0 {
		c.Sensor.PollInterval = def.Sensor.PollInterval
	}

	if c.Wheel.SegmentLength == 0 {
		c.Wheel.SegmentLength = def.Wheel.SegmentLength
	}
	if c.Wheel.MaxSegmentRate == 0 {
		c.Wheel.MaxSegmentRate = def.Wheel.MaxSegmentRate
	}

	if c.Clock.FlushEveryMinutes == 0 {
		c.Clock.FlushEveryMinutes = def.Clock.FlushEveryMinutes
	}
	if c.Clock.Start == "" {
		c.Clock.Start = def.Clock.Start
	}

	if c.Telemetry.Sink == "" {
		c.Telemetry.Sink = def.Telemetry.Sink
	}
	if c.Telemetry.Topic == "" {
		c.Telemetry.Topic = def.Telemetry.Topic
	}
	if c.Telemetry.File == "" {
		c.Telemetry.File = def.Telemetry.File
	}
	if c.Telemetry.MQTT.Broker == "" {
		c.Telemetry.MQTT.Broker = def.Telemetry.MQTT.Broker
	}
	if c.Telemetry.MQTT.ClientID == "" {
		c.Telemetry.MQTT.ClientID = def.Telemetry.MQTT.ClientID
	}
	if c.Telemetry.MQTT.RetryInterval == 0 {
		c.Telemetry.MQTT.RetryInterval = def.Telemetry.MQTT.RetryInterval
	}
	if c.Telemetry.MQTT.ConnectTimeout == 0 {
		c.Telemetry.MQTT.ConnectTimeout = def.Telemetry.MQTT.ConnectTimeout
	}
	if c.Telemetry.MQTT.PublishTimeout == 0 {
		c.Telemetry.MQTT.PublishTimeout = def.Telemetry.MQTT.PublishTimeout
	}

	if c.TimeSource.Kind == "" {
		c.TimeSource.Kind = def.TimeSource.Kind
	}
	if c.TimeSource.Address == "" && c.TimeSource.Kind == def.TimeSource.Kind {
		c.TimeSource.Address = def.TimeSource.Address
	}
	if c.TimeSource.Timeout == 0 {
		c.TimeSource.Timeout = def.TimeSource.Timeout
	}

	if c.Status.Listen == "" {
		c.Status.Listen = def.Status.Listen
	}

	if c.Mock.Speed == 0 {
		c.Mock.Speed = def.Mock.Speed
	}
	if c.Mock.RunPeriod == 0 {
		c.Mock.RunPeriod = def.Mock.RunPeriod
	}
	if c.Mock.RestPeriod == 0 {
		c.Mock.RestPeriod = def.Mock.RestPeriod
	}
	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
