// internal/sink/fanout.go
package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/logging"
)

// Fanout delivers a run to every sink in order. File sinks come first so
// the S3 sink sees their output.
type Fanout struct {
	sinks []Sink
	log   *zap.Logger
}

func NewFanout(log *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, log: logging.OrNop(log).Named("sink")}
}

// Len reports the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Deliver hands run to every sink. A failing sink does not stop the
// others; all failures are returned joined.
func (f *Fanout) Deliver(ctx context.Context, run *Run) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Deliver(ctx, run); err != nil {
			f.log.Warn("delivery failed", zap.String("sink", s.Name()), zap.String("run", run.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			continue
		}
		f.log.Debug("delivered", zap.String("sink", s.Name()), zap.String("run", run.ID))
	}
	return errors.Join(errs...)
}

// Close closes every sink and returns the last error.
func (f *Fanout) Close() error {
	var last error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			last = err
		}
	}
	return last
}
