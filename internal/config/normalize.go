// internal/config/normalize.go
package config

import (
	"strings"

	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Defaults applied by Normalize.
const (
	DefaultTimeoutMs      = 2000
	DefaultRedisChannel   = "labjack:acquisition"
	DefaultRedisTimeoutMs = 5000
	DefaultRedisRetries   = 3
	DefaultMQTTClientID   = "ljstream"
	DefaultMQTTTimeoutMs  = 10000

	StatusProtocolModbus   = "modbus"
	StatusProtocolIngest   = "ingest"
	DefaultStatusTimeoutMs = 2000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	d := &cfg.Device
	d.Type = upperOr(d.Type, "ANY")
	d.Connection = upperOr(d.Connection, "ANY")
	d.Identifier = strings.TrimSpace(d.Identifier)
	if d.Identifier == "" {
		d.Identifier = transport.IdentifierAny
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = DefaultTimeoutMs
	}
	// status block holds at most 16 characters
	if len(d.Name) > 16 {
		d.Name = d.Name[:16]
	}

	for i, ch := range cfg.Acquisition.Channels {
		cfg.Acquisition.Channels[i] = strings.ToUpper(strings.TrimSpace(ch))
	}

	if t := cfg.Trigger; t != nil {
		t.Channel = strings.ToUpper(strings.TrimSpace(t.Channel))
		if t.Edge == "" {
			t.Edge = "rising"
		}
	}

	if r := cfg.Sinks.Redis; r != nil {
		if r.Channel == "" {
			r.Channel = DefaultRedisChannel
		}
		if r.TimeoutMs == 0 {
			r.TimeoutMs = DefaultRedisTimeoutMs
		}
		if r.Retries == nil {
			n := DefaultRedisRetries
			r.Retries = &n
		}
	}
	if m := cfg.Sinks.MQTT; m != nil {
		if m.ClientID == "" {
			m.ClientID = DefaultMQTTClientID
		}
		if m.TimeoutMs == 0 {
			m.TimeoutMs = DefaultMQTTTimeoutMs
		}
	}
	if st := cfg.Sinks.Status; st != nil {
		st.Protocol = strings.ToLower(strings.TrimSpace(st.Protocol))
		if st.Protocol == "" {
			st.Protocol = StatusProtocolModbus
		}
		if st.TimeoutMs == 0 {
			st.TimeoutMs = DefaultStatusTimeoutMs
		}
	}
}

func upperOr(s, def string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}
