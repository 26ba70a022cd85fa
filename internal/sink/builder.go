// internal/sink/builder.go
package sink

import (
	"context"
	"time"

	"go.uber.org/zap"

	cfg "github.com/tamzrod/labjack-streamer/internal/config"
)

// BuildSinks creates every configured sink.
// Assumes config has already passed validation and normalization.
// On failure, sinks built so far are closed.
func BuildSinks(ctx context.Context, c cfg.SinksConfig, log *zap.Logger) (*Fanout, error) {
	var sinks []Sink
	fail := func(err error) (*Fanout, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if c.Msgpack != nil {
		sinks = append(sinks, NewMsgpackFile(c.Msgpack.Dir))
	}
	if c.CSV != nil {
		sinks = append(sinks, NewCSVFile(c.CSV.Dir))
	}
	if c.S3 != nil {
		s, err := NewS3(ctx, *c.S3)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if c.Redis != nil {
		retries := 0
		if c.Redis.Retries != nil {
			retries = *c.Redis.Retries
		}
		s, err := NewRedis(RedisConfig{
			URL:     c.Redis.URL,
			Channel: c.Redis.Channel,
			Timeout: time.Duration(c.Redis.TimeoutMs) * time.Millisecond,
			Retries: retries,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if c.MQTT != nil {
		s, err := NewMQTT(MQTTConfig{
			Broker:   c.MQTT.Broker,
			ClientID: c.MQTT.ClientID,
			Username: c.MQTT.Username,
			Password: c.MQTT.Password,
			Topic:    c.MQTT.Topic,
			QoS:      c.MQTT.QoS,
			Retain:   c.MQTT.Retain,
			Timeout:  time.Duration(c.MQTT.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if c.Status != nil {
		s, err := NewStatusRegisters(*c.Status)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	return NewFanout(log, sinks...), nil
}
