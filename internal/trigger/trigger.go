// internal/trigger/trigger.go
package trigger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Mode is the extended feature used to detect the trigger condition.
// The value is the base EF index of the feature.
type Mode uint8

const (
	ModeFrequencyIn      Mode = 3
	ModePulseWidthIn     Mode = 5
	ModeConditionalReset Mode = 12
)

func (m Mode) String() string {
	switch m {
	case ModeFrequencyIn:
		return "frequency_in"
	case ModePulseWidthIn:
		return "pulse_width_in"
	case ModeConditionalReset:
		return "conditional_reset"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode accepts frequency_in, pulse_width_in or conditional_reset.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "frequency_in", "frequencyin":
		return ModeFrequencyIn, nil
	case "pulse_width_in", "pulsewidthin":
		return ModePulseWidthIn, nil
	case "conditional_reset", "conditionalreset":
		return ModeConditionalReset, nil
	default:
		return 0, fmt.Errorf("trigger: unknown mode %q", s)
	}
}

// Edge selects the signal edge. The values are the conditional reset
// EF_CONFIG_A encoding.
type Edge uint8

const (
	EdgeFalling Edge = 0
	EdgeRising  Edge = 1
)

func (e Edge) String() string {
	switch e {
	case EdgeFalling:
		return "falling"
	case EdgeRising:
		return "rising"
	default:
		return fmt.Sprintf("Edge(%d)", uint8(e))
	}
}

// ParseEdge accepts rising or falling.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	default:
		return 0, fmt.Errorf("trigger: unknown edge %q", s)
	}
}

// Timeout is how long the stream waits for the trigger: either a finite
// positive duration or indefinitely. The zero value waits indefinitely.
type Timeout struct {
	d      time.Duration
	finite bool
}

// Indefinite waits for the trigger forever.
func Indefinite() Timeout { return Timeout{} }

// After waits at most d. A non-positive d fails validation in Configure.
func After(d time.Duration) Timeout { return Timeout{d: d, finite: true} }

// Seconds is After for a timeout given in seconds.
func Seconds(s float64) Timeout {
	return After(time.Duration(s * float64(time.Second)))
}

func (t Timeout) IsIndefinite() bool { return !t.finite }

// Duration returns the finite timeout; ok is false when indefinite.
func (t Timeout) Duration() (d time.Duration, ok bool) { return t.d, t.finite }

func (t Timeout) validate() error {
	if t.finite && t.d <= 0 {
		return fault.Validation("trigger: timeout must be > 0 or indefinite, got %s", t.d)
	}
	return nil
}

// wireMS is the library receive timeout, where 0 means wait forever.
// Sub-millisecond timeouts round up so they never become indefinite.
func (t Timeout) wireMS() float64 {
	if !t.finite {
		return transport.IndefiniteTimeout
	}
	return math.Ceil(float64(t.d) / float64(time.Millisecond))
}

func (t Timeout) String() string {
	if !t.finite {
		return "indefinite"
	}
	return t.d.String()
}

// Spec describes a hardware trigger that gates the start of capture.
type Spec struct {
	Channel string
	Mode    Mode
	Edge    Edge
	Timeout Timeout
}

// Validate checks the spec without touching the device.
func (s Spec) Validate() error {
	if _, ok := regmap.DIOIndex(s.Channel); !ok {
		return fault.Validation("trigger: channel %q is not a digital I/O line", s.Channel)
	}
	switch s.Mode {
	case ModeFrequencyIn, ModePulseWidthIn, ModeConditionalReset:
	default:
		return fault.Validation("trigger: unsupported mode %d", uint8(s.Mode))
	}
	if s.Edge != EdgeRising && s.Edge != EdgeFalling {
		return fault.Validation("trigger: unsupported edge %d", uint8(s.Edge))
	}
	return s.Timeout.validate()
}

// EFIndex is the extended feature index written for the mode and edge.
// Pulse width in has a single index; its edge is not configurable here.
func (s Spec) EFIndex() int {
	switch s.Mode {
	case ModeFrequencyIn:
		if s.Edge == EdgeFalling {
			return int(ModeFrequencyIn) + 1
		}
		return int(ModeFrequencyIn)
	default:
		return int(s.Mode)
	}
}

func (s Spec) channel() string {
	return strings.ToUpper(strings.TrimSpace(s.Channel))
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %s %s timeout=%s", s.channel(), s.Mode, s.Edge, s.Timeout)
}

// Configure arms the device for a triggered stream. The feature enable
// register is written last, so any failure leaves the trigger disabled.
func Configure(sess *session.Session, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	ch := spec.channel()
	log := sess.Logger().With(zap.Stringer("trigger", spec))
	start := time.Now()

	if err := sess.ConfigureLibrary(session.LibraryOptions{
		session.LibStreamScansReturn:      session.Number(transport.ScansReturnAll),
		session.LibStreamReceiveTimeoutMS: session.Number(spec.Timeout.wireMS()),
	}); err != nil {
		return err
	}

	if err := sess.ConfigureRegisters(session.RegisterOptions{
		ch + "_EF_ENABLE": session.Number(0),
	}); err != nil {
		return err
	}

	reg, err := regmap.Resolve(ch)
	if err != nil {
		return fault.New(fault.KindRegisterConfig, "resolve "+ch, err)
	}

	opts := session.RegisterOptions{
		"STREAM_TRIGGER_INDEX": session.Number(float64(reg.Address)),
		ch + "_EF_INDEX":       session.Number(float64(spec.EFIndex())),
	}
	if spec.Mode == ModeConditionalReset {
		opts[ch+"_EF_CONFIG_A"] = session.Number(float64(spec.Edge))
	}
	if err := sess.ConfigureRegisters(opts); err != nil {
		return err
	}

	if err := sess.ConfigureRegisters(session.RegisterOptions{
		ch + "_EF_ENABLE": session.Number(1),
	}); err != nil {
		return err
	}

	log.Info("trigger armed",
		zap.Int("trigger_index", reg.Address),
		zap.Int("ef_index", spec.EFIndex()),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
