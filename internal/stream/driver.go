// internal/stream/driver.go
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/plan"
	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/transport"
	"github.com/tamzrod/labjack-streamer/internal/trigger"
)

// DefaultHandoffDepth is the capacity of the read loop to accumulator channel.
const DefaultHandoffDepth = 16

// noScansBackoff is the pause before retrying a read that returned no scans.
const noScansBackoff = time.Millisecond

// Option tunes a Driver.
type Option func(*Driver)

// WithTrigger gates the stream start on a hardware trigger.
func WithTrigger(spec trigger.Spec) Option {
	return func(d *Driver) { d.trigger = &spec }
}

// WithResolutionIndex sets STREAM_RESOLUTION_INDEX. Default 0.
func WithResolutionIndex(n int) Option {
	return func(d *Driver) { d.resolution = n }
}

// WithRegisters adds register options to the configure batch, so they share
// the stream-active recovery. They override the base stream registers.
func WithRegisters(opts session.RegisterOptions) Option {
	return func(d *Driver) {
		if d.registers == nil {
			d.registers = make(session.RegisterOptions, len(opts))
		}
		for k, v := range opts {
			d.registers[k] = v
		}
	}
}

// WithHandoffDepth sets the handoff channel capacity.
func WithHandoffDepth(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.depth = n
		}
	}
}

// WithClock replaces time.Now for read timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// Driver runs one acquisition against a connected session.
type Driver struct {
	sess *session.Session
	plan plan.Plan
	log  *zap.Logger

	trigger    *trigger.Spec
	resolution int
	registers  session.RegisterOptions
	depth      int
	now        func() time.Time

	mu    sync.Mutex
	state State
}

// NewDriver returns an idle driver for p.
func NewDriver(sess *session.Session, p plan.Plan, opts ...Option) *Driver {
	d := &Driver{
		sess:  sess,
		plan:  p,
		log:   sess.Logger().Named("stream"),
		depth: DefaultHandoffDepth,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state. Safe to call concurrently.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	d.mu.Unlock()
	d.log.Debug("state", zap.Stringer("from", prev), zap.Stringer("to", s))
}

// Run drives configure, trigger arm, start, read and stop. ctx is only
// consulted before the stream starts.
//
// When the read loop fails the result is still returned, flagged Partial,
// together with the fault. A stop failure after a clean read loop returns
// the complete result with a fault that satisfies fault.IsStopFailure.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	res, err := d.run(ctx)
	if err != nil {
		d.setState(StateFailed)
		return res, err
	}
	d.setState(StateIdle)
	return res, nil
}

func (d *Driver) run(ctx context.Context) (*Result, error) {
	conn, err := d.sess.Conn()
	if err != nil {
		return nil, err
	}
	addrs, err := regmap.Addresses(d.plan.Channels())
	if err != nil {
		return nil, fault.Validation("stream: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}

	d.setState(StateConfiguring)
	if err := d.configure(conn); err != nil {
		return nil, err
	}

	if d.trigger != nil {
		d.setState(StateArmingTrigger)
		if err := trigger.Configure(d.sess, *d.trigger); err != nil {
			return nil, staged(err, fault.StageTrigger)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}

	scanRate, err := d.start(conn, addrs)
	if err != nil {
		return nil, err
	}
	if d.trigger != nil {
		d.log.Info("waiting for trigger", zap.Stringer("trigger", *d.trigger))
	}

	d.setState(StateReading)
	acc := NewAccumulator(d.plan.NumChannels(), d.plan.SampleCount(), d.log)
	handoff := make(chan Read, d.depth)
	done := make(chan struct{})
	go func() {
		defer close(done)
		acc.Run(handoff)
	}()

	started := d.now()
	readErr := d.readLoop(conn, handoff)

	d.setState(StateStopping)
	stopErr := d.stop(conn)

	close(handoff)
	<-done
	elapsed := d.now().Sub(started)

	res := newResult(d.plan, scanRate, acc, started, elapsed)
	res.Partial = readErr != nil
	d.log.Info("stream finished",
		zap.String("id", res.ID),
		zap.Int("samples", res.Samples),
		zap.Int("scans_per_channel", res.Scans),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", elapsed),
		zap.Bool("partial", res.Partial),
	)

	switch {
	case readErr != nil && stopErr != nil:
		return res, errors.Join(readErr, stopErr)
	case readErr != nil:
		return res, readErr
	case stopErr != nil:
		return res, stopErr
	}
	return res, nil
}

// configure writes the base stream registers and any WithRegisters options
// in one batch. A device that still has a stream running gets exactly one
// stop and one retry.
func (d *Driver) configure(conn transport.Conn) error {
	start := d.now()
	opts := session.RegisterOptions{
		"STREAM_TRIGGER_INDEX":    session.Number(0),
		"STREAM_CLOCK_SOURCE":     session.Number(0),
		"STREAM_SETTLING_US":      session.Number(0),
		"STREAM_RESOLUTION_INDEX": session.Number(float64(d.resolution)),
	}
	for k, v := range d.registers {
		opts[k] = v
	}

	err := d.sess.ConfigureRegisters(opts)
	if err != nil && transport.HasCode(err, transport.CodeStreamIsActive) {
		d.log.Warn("stream was active, stopping it", zap.Error(err))
		if stopErr := conn.StreamStop(); stopErr != nil {
			return fault.New(fault.KindStreamRead, "stop active stream", errors.Join(err, stopErr)).
				WithStage(fault.StageConfigure)
		}
		d.log.Warn("active stream stopped")
		err = d.sess.ConfigureRegisters(opts)
	}
	if err != nil {
		return staged(err, fault.StageConfigure)
	}

	d.log.Info("stream configured",
		zap.Int("resolution_index", d.resolution),
		zap.Int("registers", len(opts)),
		zap.Duration("took", d.now().Sub(start)),
	)
	return nil
}

// start issues stream start. On failure the device may have partially
// started, so a stop is attempted before returning.
func (d *Driver) start(conn transport.Conn, addrs []int) (float64, error) {
	d.setState(StateStarted)
	scanRate, err := conn.StreamStart(d.plan.ScansPerRead(), addrs, d.plan.ScanRate())
	if err == nil {
		if scanRate <= 0 {
			scanRate = d.plan.ScanRate()
		}
		if scanRate != d.plan.ScanRate() {
			d.log.Warn("device adjusted scan rate",
				zap.Float64("requested", d.plan.ScanRate()),
				zap.Float64("actual", scanRate),
			)
		}
		d.log.Info("stream started", zap.Stringer("plan", d.plan))
		return scanRate, nil
	}

	d.log.Warn("stream failed to start, stopping", zap.Error(err))
	if stopErr := conn.StreamStop(); stopErr != nil {
		return 0, fault.New(fault.KindStreamRead, "start failed and recovery stop failed", errors.Join(err, stopErr)).
			WithStage(fault.StageStart)
	}
	return 0, fault.New(fault.KindStreamRead, "start", err).WithStage(fault.StageStart)
}

// readLoop performs exactly ReadCount successful reads. No-scans results do
// not consume a slot.
func (d *Driver) readLoop(conn transport.Conn, out chan<- Read) error {
	total := d.plan.ReadCount()
	retries := 0
	for seq := 0; seq < total; {
		r, err := conn.StreamRead()
		if err != nil {
			if transport.HasCode(err, transport.CodeNoScansReturned) {
				retries++
				d.log.Debug("no scans returned, retrying", zap.Int("seq", seq), zap.Int("retries", retries))
				time.Sleep(noScansBackoff)
				continue
			}
			return fault.New(fault.KindStreamRead, fmt.Sprintf("read %d of %d", seq+1, total), err).
				WithStage(fault.StageRead)
		}
		out <- Read{Seq: seq, At: d.now(), Result: r}
		seq++
	}
	if retries > 0 {
		d.log.Debug("no-scans retries", zap.Int("count", retries))
	}
	return nil
}

func (d *Driver) stop(conn transport.Conn) error {
	start := d.now()
	if err := conn.StreamStop(); err != nil {
		return fault.New(fault.KindStreamRead, "stop", err).WithStage(fault.StageStop)
	}
	d.log.Info("stream stopped", zap.Duration("took", d.now().Sub(start)))
	return nil
}

// staged tags the outermost untagged fault in err with st.
func staged(err error, st fault.Stage) error {
	var f *fault.Fault
	if errors.As(err, &f) && f.Stage == fault.StageNone {
		f.WithStage(st)
	}
	return err
}
