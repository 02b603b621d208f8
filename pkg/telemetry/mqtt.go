package telemetry

import (
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/itohio/furball/pkg/config"
	"github.com/itohio/furball/pkg/report"
)

// ErrNotConnected is returned when publishing while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// ErrPublishTimeout is returned when the broker did not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt: publish timed out")

// MQTT publishes to an MQTT broker. Reconnects happen in the background with
// a fixed retry interval; publishing never waits for a reconnect.
type MQTT struct {
	cfg    *config.MQTTConfig
	client mqtt.Client
}

// NewMQTT creates the client and starts connecting. It does not fail when the
// broker is down; the client keeps retrying every RetryInterval.
func NewMQTT(cfg *config.MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.RetryInterval).
		SetMaxReconnectInterval(cfg.RetryInterval).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
		})

	m := &MQTT{
		cfg:    cfg,
		client: mqtt.NewClient(opts),
	}

	// With ConnectRetry the token only completes once connected; don't wait.
	m.client.Connect()

	return m, nil
}

// Publish sends payload to topic and waits up to PublishTimeout for the
// broker to acknowledge it.
func (m *MQTT) Publish(topic string, payload []byte) error {
	if len(payload) > report.MaxPayload {
		return fmt.Errorf("mqtt: payload of %d bytes exceeds %d", len(payload), report.MaxPayload)
	}
	if !m.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retain, payload)
	if !token.WaitTimeout(m.cfg.PublishTimeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
