// internal/transport/modbus/stream.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/regmap"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

// maxConsecutiveFailures ends the stream after this many failed scans in a
// row. Isolated failures are reported as skipped samples.
const maxConsecutiveFailures = 3

// readBlock is one contiguous register read.
type readBlock struct {
	Address  int
	Quantity int
}

// buildBlocks groups the scan list into contiguous reads. Entries keep their
// scan list order; a new block starts whenever an address is not adjacent
// to the previous one.
func buildBlocks(regs []regmap.Register) []readBlock {
	var blocks []readBlock
	for i, r := range regs {
		if i > 0 {
			last := &blocks[len(blocks)-1]
			if r.Address == last.Address+last.Quantity {
				last.Quantity += r.Words()
				continue
			}
		}
		blocks = append(blocks, readBlock{Address: r.Address, Quantity: r.Words()})
	}
	return blocks
}

// triggerWait describes the edge a triggered stream waits for.
type triggerWait struct {
	dio    int
	rising bool
}

// scanPoller is a clock-driven reader of the scan list. Each tick produces
// one scan; ticks the poller could not serve in time become skipped scans.
type scanPoller struct {
	client  *registerClient
	regs    []regmap.Register
	blocks  []readBlock
	period  time.Duration
	trigger *triggerWait
	log     *zap.Logger
}

func newScanPoller(client *registerClient, regs []regmap.Register, scanRate float64, trig *triggerWait, log *zap.Logger) (*scanPoller, error) {
	if len(regs) == 0 {
		return nil, errors.New("scan list is empty")
	}
	if !(scanRate > 0) {
		return nil, fmt.Errorf("scan rate must be > 0, got %g", scanRate)
	}
	// the ticker needs a period of at least 1ns
	period := time.Duration(float64(time.Second) / scanRate)
	if period <= 0 {
		return nil, fmt.Errorf("scan rate %g Hz is above the poller limit", scanRate)
	}
	return &scanPoller{
		client:  client,
		regs:    regs,
		blocks:  buildBlocks(regs),
		period:  period,
		trigger: trig,
		log:     log,
	}, nil
}

// PollOnce reads one scan. All-or-nothing: any failed block fails the scan.
func (p *scanPoller) PollOnce() ([]float64, error) {
	words := make([]uint16, 0, len(p.regs)*2)
	for _, b := range p.blocks {
		w, err := p.client.ReadWords(b.Address, b.Quantity)
		if err != nil {
			return nil, err
		}
		words = append(words, w...)
	}

	scan := make([]float64, len(p.regs))
	off := 0
	for i, r := range p.regs {
		n := r.Words()
		v, err := r.Decode(words[off : off+n])
		if err != nil {
			return nil, err
		}
		scan[i] = v
		off += n
	}
	return scan, nil
}

func (p *scanPoller) skipped() []float64 {
	scan := make([]float64, len(p.regs))
	for i := range scan {
		scan[i] = transport.SkippedSample
	}
	return scan
}

// Run waits for the trigger, if any, then emits one scan per period into
// buf until ctx is cancelled or the link keeps failing.
func (p *scanPoller) Run(ctx context.Context, buf *backlog) {
	if p.trigger != nil {
		if err := p.waitTrigger(ctx); err != nil {
			if ctx.Err() == nil {
				buf.fail(err)
			}
			return
		}
		p.log.Info("trigger detected", zap.Int("dio", p.trigger.dio))
	}

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	start := time.Now()
	emitted := 0
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due := int(now.Sub(start) / p.period)
			for emitted < due-1 {
				buf.push(p.skipped())
				emitted++
			}

			scan, err := p.PollOnce()
			if err != nil {
				failures++
				p.log.Warn("scan failed", zap.Int("scan", emitted), zap.Error(err))
				if failures >= maxConsecutiveFailures {
					buf.fail(err)
					return
				}
				scan = p.skipped()
			} else {
				failures = 0
			}
			buf.push(scan)
			emitted++
		}
	}
}

// waitTrigger polls the trigger line once per period until the configured
// edge is seen.
func (p *scanPoller) waitTrigger(ctx context.Context) error {
	addr := mustAddress(fmt.Sprintf("DIO%d", p.trigger.dio))
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	prev := -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w, err := p.client.ReadWords(addr, 1)
			if err != nil {
				return err
			}
			level := 0
			if w[0] != 0 {
				level = 1
			}
			if prev >= 0 && level != prev {
				if (p.trigger.rising && level == 1) || (!p.trigger.rising && level == 0) {
					return nil
				}
			}
			prev = level
		}
	}
}

// backlog is the driver-side scan buffer shared by the poller and
// StreamRead.
type backlog struct {
	mu      sync.Mutex
	samples []float64
	width   int
	err     error
	notify  chan struct{}
}

func newBacklog(width int) *backlog {
	return &backlog{width: width, notify: make(chan struct{}, 1)}
}

func (b *backlog) push(scan []float64) {
	b.mu.Lock()
	b.samples = append(b.samples, scan...)
	b.mu.Unlock()
	b.signal()
}

func (b *backlog) fail(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
	b.signal()
}

func (b *backlog) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// take removes scans×width samples. With allOrNone it never waits;
// otherwise it waits up to timeout (zero waits forever).
func (b *backlog) take(scans int, allOrNone bool, timeout time.Duration) ([]float64, int, error) {
	want := scans * b.width

	var deadline <-chan time.Time
	if !allOrNone && timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		b.mu.Lock()
		if len(b.samples) >= want {
			out := make([]float64, want)
			copy(out, b.samples)
			b.samples = append(b.samples[:0], b.samples[want:]...)
			queued := len(b.samples) / b.width
			b.mu.Unlock()
			return out, queued, nil
		}
		err := b.err
		b.mu.Unlock()

		if err != nil {
			return nil, 0, transport.NewError("stream read", codeOrUnknown(err), err)
		}
		if allOrNone {
			return nil, 0, transport.NewError("stream read", transport.CodeNoScansReturned, nil)
		}
		select {
		case <-b.notify:
		case <-deadline:
			return nil, 0, transport.NewError("stream read", transport.CodeReceiveTimeout, nil)
		}
	}
}

// queued reports complete scans waiting in the buffer.
func (b *backlog) queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples) / b.width
}

func codeOrUnknown(err error) transport.Code {
	if c, ok := transport.CodeOf(err); ok {
		return c
	}
	return transport.CodeUnknown
}
