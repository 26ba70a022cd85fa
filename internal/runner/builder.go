// internal/runner/builder.go
package runner

import (
	"fmt"

	cfg "github.com/tamzrod/labjack-streamer/internal/config"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/stream"
	"github.com/tamzrod/labjack-streamer/internal/transport"
	"github.com/tamzrod/labjack-streamer/internal/trigger"
)

// Plan is everything one acquisition needs, resolved from config.
type Plan struct {
	Target    session.Target
	Library   session.LibraryOptions
	Registers session.RegisterOptions

	NegativeChannel int
	RangeVolts      float64

	Request stream.Request
	Trigger *trigger.Spec

	ResolutionIndex int
	HandoffDepth    int

	DeviceName string
}

// BuildPlan converts a config into a Plan.
// Assumes config has already passed Validate and Normalize.
func BuildPlan(c *cfg.Config) (Plan, error) {
	target, err := BuildTarget(c.Device)
	if err != nil {
		return Plan{}, err
	}
	lib, err := c.LibraryOptions()
	if err != nil {
		return Plan{}, err
	}
	regs, err := c.RegisterOptions()
	if err != nil {
		return Plan{}, err
	}

	a := c.Acquisition
	p := Plan{
		Target:          target,
		Library:         lib,
		Registers:       regs,
		NegativeChannel: session.NegativeChannelGND,
		RangeVolts:      session.DefaultRangeVolts,
		Request: stream.Request{
			Channels:     append([]string(nil), a.Channels...),
			SamplingRate: a.SamplingRate,
			Duration:     a.DurationS,
			ScansPerRead: a.ScansPerRead,
		},
		ResolutionIndex: a.ResolutionIndex,
		HandoffDepth:    a.HandoffDepth,
		DeviceName:      c.Device.Name,
	}
	if a.NegativeChannel != nil {
		p.NegativeChannel = *a.NegativeChannel
	}
	if a.RangeVolts != nil {
		p.RangeVolts = *a.RangeVolts
	}

	if c.Trigger != nil {
		spec, err := BuildTrigger(*c.Trigger)
		if err != nil {
			return Plan{}, err
		}
		p.Trigger = &spec
	}
	return p, nil
}

// BuildTarget resolves the device section.
func BuildTarget(d cfg.DeviceConfig) (session.Target, error) {
	dt, err := transport.ParseDeviceType(d.Type)
	if err != nil {
		return session.Target{}, err
	}
	ct, err := transport.ParseConnectionType(d.Connection)
	if err != nil {
		return session.Target{}, err
	}
	return session.Target{DeviceType: dt, ConnectionType: ct, Identifier: d.Identifier}, nil
}

// BuildTrigger resolves the trigger section. An unset timeout waits forever.
func BuildTrigger(t cfg.TriggerConfig) (trigger.Spec, error) {
	mode, err := trigger.ParseMode(t.Mode)
	if err != nil {
		return trigger.Spec{}, err
	}
	edge := trigger.EdgeRising
	if t.Edge != "" {
		if edge, err = trigger.ParseEdge(t.Edge); err != nil {
			return trigger.Spec{}, err
		}
	}
	spec := trigger.Spec{Channel: t.Channel, Mode: mode, Edge: edge, Timeout: trigger.Indefinite()}
	if t.TimeoutS != nil {
		spec.Timeout = trigger.Seconds(*t.TimeoutS)
	}
	if err := spec.Validate(); err != nil {
		return trigger.Spec{}, fmt.Errorf("runner: %w", err)
	}
	return spec, nil
}

// Options returns the stream options for the plan.
func (p Plan) Options() []stream.Option {
	opts := []stream.Option{
		stream.WithRegisters(session.AnalogInputOptions(p.NegativeChannel, p.RangeVolts, p.Registers)),
		stream.WithResolutionIndex(p.ResolutionIndex),
		stream.WithHandoffDepth(p.HandoffDepth),
	}
	if p.Trigger != nil {
		opts = append(opts, stream.WithTrigger(*p.Trigger))
	}
	return opts
}
