// internal/stream/accumulator.go
package stream

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/logging"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// Read is one completed buffered read handed from the read loop.
type Read struct {
	Seq    int
	At     time.Time
	Result transport.ReadResult
}

// Totals are the running counts of an accumulator.
type Totals struct {
	Reads   int
	Samples int
	Scans   int
	Skipped int
}

// Accumulator collects reads in sequence order, replacing skipped-sample
// markers with NaN. It is owned by a single consumer goroutine.
type Accumulator struct {
	numChannels int
	log         *zap.Logger

	next    int
	pending map[int]Read

	flat      []float64
	totals    Totals
	readTimes map[int]time.Time
}

// NewAccumulator returns an empty accumulator for numChannels channels.
// capacityHint presizes the sample buffer; zero is fine.
func NewAccumulator(numChannels, capacityHint int, logger *zap.Logger) *Accumulator {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Accumulator{
		numChannels: numChannels,
		log:         logging.OrNop(logger),
		pending:     make(map[int]Read),
		flat:        make([]float64, 0, capacityHint),
		readTimes:   make(map[int]time.Time),
	}
}

// Run consumes in until it is closed, then flushes anything still held
// for a missing sequence number.
func (a *Accumulator) Run(in <-chan Read) {
	for r := range in {
		a.Add(r)
	}
	a.flush()
}

// Add accepts r. Reads ahead of the next expected sequence number are held
// until the gap fills.
func (a *Accumulator) Add(r Read) {
	if r.Seq < a.next {
		a.log.Warn("duplicate stream read dropped", zap.Int("seq", r.Seq))
		return
	}
	a.pending[r.Seq] = r
	for {
		p, ok := a.pending[a.next]
		if !ok {
			return
		}
		delete(a.pending, a.next)
		a.apply(p)
		a.next++
	}
}

// Pending reports how many reads are held waiting for a gap.
func (a *Accumulator) Pending() int { return len(a.pending) }

func (a *Accumulator) flush() {
	if len(a.pending) == 0 {
		return
	}
	seqs := make([]int, 0, len(a.pending))
	for s := range a.pending {
		seqs = append(seqs, s)
	}
	sort.Ints(seqs)
	a.log.Warn("stream reads missing at end of stream",
		zap.Int("expected_seq", a.next),
		zap.Ints("held", seqs),
	)
	for _, s := range seqs {
		a.apply(a.pending[s])
		delete(a.pending, s)
	}
	a.next = seqs[len(seqs)-1] + 1
}

func (a *Accumulator) apply(r Read) {
	samples := r.Result.Samples
	skipped := 0
	start := len(a.flat)
	a.flat = append(a.flat, samples...)
	for i := start; i < len(a.flat); i++ {
		if a.flat[i] == transport.SkippedSample {
			a.flat[i] = math.NaN()
			skipped++
		}
	}

	a.totals.Reads++
	a.totals.Samples += len(samples)
	if a.numChannels > 0 {
		a.totals.Scans += len(samples) / a.numChannels
	}
	a.totals.Skipped += skipped
	a.readTimes[r.Seq] = r.At

	a.log.Info("stream read",
		zap.Int("seq", r.Seq),
		zap.Time("returned_at", r.At),
		zap.Int("samples", len(samples)),
		zap.Int("skipped", skipped),
		zap.Int("device_backlog", r.Result.DeviceBacklog),
		zap.Int("driver_backlog", r.Result.DriverBacklog),
	)
}

// Totals returns the running counts.
func (a *Accumulator) Totals() Totals { return a.totals }

// Flat returns the accumulated interleaved samples. The slice is shared.
func (a *Accumulator) Flat() []float64 { return a.flat }

// ReadTimes returns the completion time of each applied read in sequence
// order.
func (a *Accumulator) ReadTimes() []time.Time {
	seqs := make([]int, 0, len(a.readTimes))
	for s := range a.readTimes {
		seqs = append(seqs, s)
	}
	sort.Ints(seqs)
	out := make([]time.Time, len(seqs))
	for i, s := range seqs {
		out[i] = a.readTimes[s]
	}
	return out
}
