// internal/status/snapshot.go
package status

import (
	"time"

	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/stream"
)

// Snapshot is the outcome of one run, reduced to what telemetry carries.
// It holds no memory of earlier runs.
type Snapshot struct {
	Health        uint16
	LastErrorCode uint16
	FaultKind     uint16
	Reads         uint32
	Skipped       uint32
	Elapsed       time.Duration
	Partial       bool
	DeviceName    string
}

// FromRun derives a snapshot from an acquisition result and its error.
// res may be nil when the run failed before producing records.
func FromRun(res *stream.Result, err error, deviceName string) Snapshot {
	s := Snapshot{Health: HealthOK, DeviceName: deviceName}

	if res != nil {
		s.Reads = clampU32(res.Reads)
		s.Skipped = clampU32(res.Skipped)
		s.Elapsed = res.Elapsed
		s.Partial = res.Partial
	}

	if err == nil {
		if res == nil {
			s.Health = HealthUnknown
		}
		return s
	}

	s.Health = HealthError
	if fault.IsStopFailure(err) && !s.Partial {
		s.Health = HealthStopFailed
	}
	if k, ok := fault.KindOf(err); ok {
		s.FaultKind = uint16(k)
	}
	if code, ok := fault.CauseCode(err); ok && code > 0 && code <= 0xFFFF {
		s.LastErrorCode = uint16(code)
	}
	return s
}

func clampU32(n int) uint32 {
	switch {
	case n < 0:
		return 0
	case uint64(n) > 0xFFFFFFFF:
		return 0xFFFFFFFF
	default:
		return uint32(n)
	}
}
