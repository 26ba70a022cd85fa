// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tamzrod/labjack-streamer/internal/logging"
	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/transport"
	"github.com/tamzrod/labjack-streamer/internal/trigger"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: empty configuration", ErrInvalid)
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	if cfg.Device.Type != "" {
		if _, err := transport.ParseDeviceType(cfg.Device.Type); err != nil {
			return invalid("device.type: %v", err)
		}
	}
	if cfg.Device.Connection != "" {
		if _, err := transport.ParseConnectionType(cfg.Device.Connection); err != nil {
			return invalid("device.connection: %v", err)
		}
	}
	if cfg.Device.TimeoutMs < 0 {
		return invalid("device.timeout_ms must be >= 0, got %d", cfg.Device.TimeoutMs)
	}
	if !isASCII(cfg.Device.Name) {
		return invalid("device.name must contain ASCII characters only")
	}

	// ------------------------------------------------------------
	// LIBRARY + REGISTERS (name vocabulary and value kinds)
	// ------------------------------------------------------------

	for name, raw := range cfg.Library {
		if _, err := session.ParseLibraryOption(name); err != nil {
			return invalid("library: %v", err)
		}
		if _, err := ToValue(raw); err != nil {
			return invalid("library.%s: %v", name, err)
		}
	}
	for name, raw := range cfg.Registers {
		if _, err := regmap.Resolve(name); err != nil {
			return invalid("registers: %v", err)
		}
		if _, err := ToValue(raw); err != nil {
			return invalid("registers.%s: %v", name, err)
		}
	}

	// ------------------------------------------------------------
	// ACQUISITION
	// ------------------------------------------------------------

	a := cfg.Acquisition
	if len(a.Channels) == 0 {
		return invalid("acquisition.channels: at least one channel required")
	}
	for _, ch := range a.Channels {
		if strings.TrimSpace(ch) == "" {
			return invalid("acquisition.channels: empty channel name")
		}
	}
	if !positive(a.SamplingRate) {
		return invalid("acquisition.sampling_rate must be > 0, got %g", a.SamplingRate)
	}
	if !positive(a.DurationS) {
		return invalid("acquisition.duration_s must be > 0, got %g", a.DurationS)
	}
	if a.ScansPerRead < 0 {
		return invalid("acquisition.scans_per_read must be >= 0, got %d", a.ScansPerRead)
	}
	if a.ResolutionIndex < 0 {
		return invalid("acquisition.resolution_index must be >= 0, got %d", a.ResolutionIndex)
	}
	if a.HandoffDepth < 0 {
		return invalid("acquisition.handoff_depth must be >= 0, got %d", a.HandoffDepth)
	}
	if a.RangeVolts != nil && !positive(*a.RangeVolts) {
		return invalid("acquisition.range_volts must be > 0, got %g", *a.RangeVolts)
	}
	if a.NegativeChannel != nil && *a.NegativeChannel < 0 {
		return invalid("acquisition.negative_channel must be >= 0, got %d", *a.NegativeChannel)
	}

	// ------------------------------------------------------------
	// TRIGGER (OPT-IN)
	// ------------------------------------------------------------

	if t := cfg.Trigger; t != nil {
		if _, ok := regmap.DIOIndex(t.Channel); !ok {
			return invalid("trigger.channel %q is not a digital I/O line", t.Channel)
		}
		if _, err := trigger.ParseMode(t.Mode); err != nil {
			return invalid("trigger.mode: %v", err)
		}
		if t.Edge != "" {
			if _, err := trigger.ParseEdge(t.Edge); err != nil {
				return invalid("trigger.edge: %v", err)
			}
		}
		if t.TimeoutS != nil && !positive(*t.TimeoutS) {
			return invalid("trigger.timeout_s must be > 0 when set, got %g", *t.TimeoutS)
		}
	}

	// ------------------------------------------------------------
	// SINKS
	// ------------------------------------------------------------

	s := cfg.Sinks
	if s.Msgpack != nil && s.Msgpack.Dir == "" {
		return invalid("sinks.msgpack.dir required")
	}
	if s.CSV != nil && s.CSV.Dir == "" {
		return invalid("sinks.csv.dir required")
	}
	if s.S3 != nil {
		if s.S3.Bucket == "" {
			return invalid("sinks.s3.bucket required")
		}
		if s.Msgpack == nil && s.CSV == nil {
			return invalid("sinks.s3 uploads file sink output; enable sinks.msgpack or sinks.csv")
		}
	}
	if s.Redis != nil {
		if s.Redis.URL == "" {
			return invalid("sinks.redis.url required")
		}
		if s.Redis.Retries != nil && *s.Redis.Retries < 0 {
			return invalid("sinks.redis.retries must be >= 0, got %d", *s.Redis.Retries)
		}
		if s.Redis.TimeoutMs < 0 {
			return invalid("sinks.redis.timeout_ms must be >= 0, got %d", s.Redis.TimeoutMs)
		}
	}
	if s.MQTT != nil {
		if s.MQTT.Broker == "" {
			return invalid("sinks.mqtt.broker required")
		}
		if s.MQTT.Topic == "" {
			return invalid("sinks.mqtt.topic required")
		}
		if s.MQTT.QoS > 2 {
			return invalid("sinks.mqtt.qos must be 0, 1 or 2, got %d", s.MQTT.QoS)
		}
		if s.MQTT.TimeoutMs < 0 {
			return invalid("sinks.mqtt.timeout_ms must be >= 0, got %d", s.MQTT.TimeoutMs)
		}
	}
	if st := s.Status; st != nil {
		if st.Endpoint == "" {
			return invalid("sinks.status.endpoint required")
		}
		switch strings.ToLower(strings.TrimSpace(st.Protocol)) {
		case "", StatusProtocolModbus, StatusProtocolIngest:
		default:
			return invalid("sinks.status.protocol must be %q or %q, got %q",
				StatusProtocolModbus, StatusProtocolIngest, st.Protocol)
		}
		if st.UnitID < 0 || st.UnitID > 255 {
			return invalid("sinks.status.unit_id %d out of range", st.UnitID)
		}
		if st.TimeoutMs < 0 {
			return invalid("sinks.status.timeout_ms must be >= 0, got %d", st.TimeoutMs)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}
