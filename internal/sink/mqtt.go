// internal/sink/mqtt.go
package sink

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultMQTTTimeout bounds connect and each publish.
const DefaultMQTTTimeout = 10 * time.Second

// MQTTConfig configures the telemetry publisher.
type MQTTConfig struct {
	Broker   string // tcp://host:1883
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Retain   bool
	Timeout  time.Duration
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes the JSON run summary to <topic> and the encoded status
// block, big-endian words, to <topic>/status.
type MQTT struct {
	config MQTTConfig
	client mqtt.Client
	pub    publisher
}

func NewMQTT(c MQTTConfig) (*MQTT, error) {
	if c.Broker == "" || c.Topic == "" {
		return nil, errors.New("mqtt: broker and topic are required")
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultMQTTTimeout
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.Broker)
	opts.SetClientID(c.ClientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.Timeout)
	opts.SetWriteTimeout(c.Timeout)
	opts.SetKeepAlive(60 * time.Second)

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(c.Timeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out after %s", c.Broker, c.Timeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", c.Broker, err)
	}
	return &MQTT{config: c, client: client, pub: client}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Deliver(ctx context.Context, run *Run) error {
	summary := NewSummary(run)
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("mqtt: marshal summary: %w", err)
	}
	if err := m.publish(ctx, m.config.Topic, body); err != nil {
		return err
	}

	words := make([]byte, 2*len(summary.Status))
	for i, w := range summary.Status {
		binary.BigEndian.PutUint16(words[2*i:], w)
	}
	return m.publish(ctx, m.config.Topic+"/status", words)
}

func (m *MQTT) publish(ctx context.Context, topic string, payload []byte) error {
	tok := m.pub.Publish(topic, m.config.QoS, m.config.Retain, payload)

	timer := time.NewTimer(m.config.Timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt: publish %s: %w", topic, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("mqtt: publish %s timed out after %s", topic, m.config.Timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
