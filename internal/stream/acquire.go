// internal/stream/acquire.go
package stream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/plan"
	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/session"
)

// Request is one acquisition as the caller describes it.
type Request struct {
	Channels     []string
	SamplingRate float64 // total over all channels, Hz
	Duration     float64 // seconds

	// ScansPerRead is the chunk size. Zero reads the whole plan at once.
	ScansPerRead int
}

// Result is the outcome of one acquisition.
type Result struct {
	ID       string
	Channels []string
	Records  map[string]Record

	Plan     plan.Plan
	ScanRate float64 // as reported by the device at start

	Reads   int
	Samples int
	Scans   int // per channel
	Skipped int

	ReadTimes []time.Time
	Started   time.Time
	Elapsed   time.Duration

	// Partial is set when the read loop failed before completing the plan.
	Partial bool
}

func newResult(p plan.Plan, scanRate float64, acc *Accumulator, started time.Time, elapsed time.Duration) *Result {
	t := acc.Totals()
	return &Result{
		ID:        uuid.NewString(),
		Channels:  p.Channels(),
		Records:   Deinterleave(acc.Flat(), p.Channels(), scanRate),
		Plan:      p,
		ScanRate:  scanRate,
		Reads:     t.Reads,
		Samples:   t.Samples,
		Scans:     t.Scans,
		Skipped:   t.Skipped,
		ReadTimes: acc.ReadTimes(),
		Started:   started,
		Elapsed:   elapsed,
	}
}

// Record returns the record for channel.
func (r *Result) Record(channel string) (Record, bool) {
	rec, ok := r.Records[channel]
	return rec, ok
}

// Acquire plans req and runs one acquisition on a connected session.
// Input is validated before any device I/O.
func Acquire(ctx context.Context, sess *session.Session, req Request, opts ...Option) (*Result, error) {
	p, err := plan.New(plan.Request{
		Channels:     req.Channels,
		SamplingRate: req.SamplingRate,
		Duration:     req.Duration,
		ScansPerRead: req.ScansPerRead,
	})
	if err != nil {
		return nil, err
	}
	if _, err := regmap.Addresses(p.Channels()); err != nil {
		return nil, fault.Validation("stream: %v", err)
	}

	d := NewDriver(sess, p, opts...)
	if d.trigger != nil {
		if err := d.trigger.Validate(); err != nil {
			return nil, err
		}
	}
	return d.Run(ctx)
}
