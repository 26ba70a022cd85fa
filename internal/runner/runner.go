// internal/runner/runner.go
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/logging"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/sink"
	"github.com/tamzrod/labjack-streamer/internal/status"
	"github.com/tamzrod/labjack-streamer/internal/stream"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Deliverer receives finished runs. *sink.Fanout implements it.
type Deliverer interface {
	Deliver(ctx context.Context, run *sink.Run) error
}

// Outcome is what one Run produced.
type Outcome struct {
	Run *sink.Run

	// Err is the acquisition error, SinkErr the delivery error.
	Err     error
	SinkErr error
}

// Runner connects, configures, acquires and delivers, once per Run.
type Runner struct {
	plan   Plan
	opener transport.Opener
	sinks  Deliverer
	log    *zap.Logger
}

func New(plan Plan, opener transport.Opener, sinks Deliverer, log *zap.Logger) *Runner {
	return &Runner{plan: plan, opener: opener, sinks: sinks, log: logging.OrNop(log)}
}

// Run performs one acquisition. Analog input and extra register writes go
// out with the stream configuration (see Plan.Options). The session is
// closed before delivery, and delivery happens whether or not the
// acquisition succeeded. Cancelling ctx aborts the acquisition but not the
// delivery of what was captured.
func (r *Runner) Run(ctx context.Context) Outcome {
	var (
		res  *stream.Result
		info transport.Info
	)
	start := time.Now()

	err := session.With(r.opener, r.plan.Target, r.log, func(sess *session.Session) error {
		info = sess.Info()

		if len(r.plan.Library) > 0 {
			if err := sess.ConfigureLibrary(r.plan.Library); err != nil {
				return err
			}
		}
		var err error
		res, err = stream.Acquire(ctx, sess, r.plan.Request, r.plan.Options()...)
		return err
	})

	run := &sink.Run{
		ID:     runID(res),
		Result: res,
		Err:    err,
		Device: info,
		Status: status.FromRun(res, err, r.plan.DeviceName),
	}

	fields := []zap.Field{
		zap.String("run", run.ID),
		zap.Uint16("health", run.Status.Health),
		zap.Duration("took", time.Since(start)),
	}
	if res != nil {
		fields = append(fields,
			zap.Int("samples", res.Samples),
			zap.Int("skipped", res.Skipped),
			zap.Bool("partial", res.Partial),
		)
	}
	if err != nil {
		r.log.Error("acquisition failed", append(fields, zap.Error(err))...)
	} else {
		r.log.Info("acquisition complete", fields...)
	}

	out := Outcome{Run: run, Err: err}
	if r.sinks != nil {
		out.SinkErr = r.sinks.Deliver(context.WithoutCancel(ctx), run)
	}
	return out
}

func runID(res *stream.Result) string {
	if res != nil && res.ID != "" {
		return res.ID
	}
	return uuid.NewString()
}
