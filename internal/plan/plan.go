// internal/plan/plan.go
package plan

import (
	"fmt"
	"math"
	"strings"

	"github.com/tamzrod/labjack-streamer/internal/fault"
)

// ceilTolerance absorbs float noise in rate × duration (100 × 0.07 is
// 7.000000000000001) for the first estimate. The scan count is then grown
// until the derived duration covers the requested one.
const ceilTolerance = 1e-9

// MaxSampleCount bounds a single acquisition.
const MaxSampleCount = math.MaxInt32

// Request is what the caller asks for.
type Request struct {
	Channels     []string
	SamplingRate float64 // total over all channels, Hz
	Duration     float64 // seconds

	// ScansPerRead is the chunk size in scans. Zero means one chunk that
	// covers the whole plan.
	ScansPerRead int
}

// Plan is the concrete schedule derived from a Request. Immutable.
type Plan struct {
	channels []string

	samplingRate      float64
	scanRate          float64
	requestedDuration float64
	duration          float64

	sampleCount  int
	scanCount    int
	scansPerRead int
	readCount    int
}

// New derives a Plan. The last scan is always complete and the derived
// duration never undercuts the requested one.
func New(req Request) (Plan, error) {
	if len(req.Channels) == 0 {
		return Plan{}, fault.Validation("plan: at least one channel required")
	}
	seen := make(map[string]bool, len(req.Channels))
	for i, ch := range req.Channels {
		name := strings.ToUpper(strings.TrimSpace(ch))
		if name == "" {
			return Plan{}, fault.Validation("plan: channel %d has an empty name", i)
		}
		if seen[name] {
			return Plan{}, fault.Validation("plan: channel %s listed twice", ch)
		}
		seen[name] = true
	}
	if !(req.SamplingRate > 0) || math.IsInf(req.SamplingRate, 0) {
		return Plan{}, fault.Validation("plan: sampling rate must be > 0, got %g", req.SamplingRate)
	}
	if !(req.Duration > 0) || math.IsInf(req.Duration, 0) {
		return Plan{}, fault.Validation("plan: duration must be > 0, got %g", req.Duration)
	}
	if req.ScansPerRead < 0 {
		return Plan{}, fault.Validation("plan: scans per read must be > 0, got %d", req.ScansPerRead)
	}

	numChannels := len(req.Channels)
	scanRate := req.SamplingRate / float64(numChannels)

	total := req.SamplingRate * req.Duration
	if total > MaxSampleCount {
		return Plan{}, fault.Validation("plan: %g samples exceeds the limit of %d", total, MaxSampleCount)
	}
	samples := ceilInt(total)
	scans := (samples + numChannels - 1) / numChannels
	for float64(scans)/scanRate < req.Duration {
		scans++
	}
	samples = scans * numChannels
	if samples > MaxSampleCount {
		return Plan{}, fault.Validation("plan: %d samples exceeds the limit of %d", samples, MaxSampleCount)
	}

	chunk := req.ScansPerRead
	if chunk == 0 {
		chunk = scans
	}
	reads := (scans + chunk - 1) / chunk

	return Plan{
		channels:          append([]string(nil), req.Channels...),
		samplingRate:      req.SamplingRate,
		scanRate:          scanRate,
		requestedDuration: req.Duration,
		duration:          float64(scans) / scanRate,
		sampleCount:       samples,
		scanCount:         scans,
		scansPerRead:      chunk,
		readCount:         reads,
	}, nil
}

func ceilInt(x float64) int {
	c := math.Ceil(x - ceilTolerance*math.Max(1, math.Abs(x)))
	if c < 1 {
		return 1
	}
	return int(c)
}

// WithScansPerRead returns a copy of p re-chunked to n scans per read.
func (p Plan) WithScansPerRead(n int) (Plan, error) {
	if n <= 0 {
		return Plan{}, fault.Validation("plan: scans per read must be > 0, got %d", n)
	}
	p.scansPerRead = n
	p.readCount = (p.scanCount + n - 1) / n
	p.channels = append([]string(nil), p.channels...)
	return p, nil
}

// Channels returns a copy of the scan list names.
func (p Plan) Channels() []string { return append([]string(nil), p.channels...) }

func (p Plan) NumChannels() int { return len(p.channels) }

// SamplingRate is the requested total rate over all channels, Hz.
func (p Plan) SamplingRate() float64 { return p.samplingRate }

// ScanRate is the per-channel rate, Hz.
func (p Plan) ScanRate() float64 { return p.scanRate }

func (p Plan) RequestedDuration() float64 { return p.requestedDuration }

// Duration is the derived duration, scans / scan rate.
func (p Plan) Duration() float64 { return p.duration }

func (p Plan) SampleCount() int { return p.sampleCount }

func (p Plan) ScanCount() int { return p.scanCount }

func (p Plan) ScansPerRead() int { return p.scansPerRead }

func (p Plan) ReadCount() int { return p.readCount }

func (p Plan) String() string {
	return fmt.Sprintf(
		"channels=%v rate=%gHz scan_rate=%gHz samples=%d scans=%d duration=%gs scans_per_read=%d reads=%d",
		p.channels, p.samplingRate, p.scanRate, p.sampleCount, p.scanCount, p.duration, p.scansPerRead, p.readCount,
	)
}
