// internal/sink/types.go
package sink

import (
	"context"
	"time"

	"github.com/tamzrod/labjack-streamer/internal/status"
	"github.com/tamzrod/labjack-streamer/internal/stream"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Run is one finished acquisition as the sinks see it.
// Result is nil when the run failed before any records existed.
type Run struct {
	ID     string
	Result *stream.Result
	Err    error
	Device transport.Info
	Status status.Snapshot

	// Files is filled by file sinks; Objects by the S3 sink.
	Files   []string
	Objects []string
}

// Sink delivers a run somewhere.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, run *Run) error
	Close() error
}

// Summary is the JSON form published to brokers.
type Summary struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	SerialNumber int       `json:"serial_number"`
	Channels     []string  `json:"channels"`
	SamplingRate float64   `json:"sampling_rate"`
	ScanRate     float64   `json:"scan_rate"`
	Scans        int       `json:"scans"`
	Reads        int       `json:"reads"`
	Samples      int       `json:"samples"`
	Skipped      int       `json:"skipped"`
	Partial      bool      `json:"partial"`
	Started      time.Time `json:"started"`
	ElapsedMS    int64     `json:"elapsed_ms"`
	Health       uint16    `json:"health"`
	Error        string    `json:"error,omitempty"`
	Files        []string  `json:"files,omitempty"`
	Objects      []string  `json:"objects,omitempty"`
	Status       []uint16  `json:"status"`
}

// NewSummary reduces a run to its published summary.
func NewSummary(run *Run) Summary {
	s := Summary{
		ID:           run.ID,
		Device:       run.Device.DeviceType.String(),
		SerialNumber: run.Device.SerialNumber,
		Health:       run.Status.Health,
		Files:        run.Files,
		Objects:      run.Objects,
		Status:       status.Encode(run.Status),
	}
	if run.Err != nil {
		s.Error = run.Err.Error()
	}
	if r := run.Result; r != nil {
		s.Channels = r.Channels
		s.SamplingRate = r.Plan.SamplingRate()
		s.ScanRate = r.ScanRate
		s.Scans = r.Scans
		s.Reads = r.Reads
		s.Samples = r.Samples
		s.Skipped = r.Skipped
		s.Partial = r.Partial
		s.Started = r.Started
		s.ElapsedMS = r.Elapsed.Milliseconds()
	}
	return s
}
