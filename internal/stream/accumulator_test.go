// internal/stream/accumulator_test.go
package stream

import (
	"math"
	"testing"
	"time"

	"github.com/tamzrod/labjack-streamer/internal/transport"
	"github.com/tamzrod/labjack-streamer/internal/transport/transporttest"
)

func read(seq int, values ...float64) Read {
	return Read{
		Seq:    seq,
		At:     time.Unix(int64(seq), 0),
		Result: transporttest.Samples(values...),
	}
}

func TestAccumulator_SkippedSamples(t *testing.T) {
	a := NewAccumulator(3, 0, nil)
	a.Add(read(0, 1, 2, transport.SkippedSample, 4, 5, transport.SkippedSample))

	tot := a.Totals()
	if tot.Skipped != 2 || tot.Samples != 6 || tot.Scans != 2 || tot.Reads != 1 {
		t.Fatalf("totals = %+v", tot)
	}
	flat := a.Flat()
	for i, v := range flat {
		isNaN := math.IsNaN(v)
		if (i == 2 || i == 5) != isNaN {
			t.Fatalf("index %d: value %v", i, v)
		}
	}

	recs := Deinterleave(flat, []string{"AIN0", "AIN1", "AIN2"}, 10)
	for _, v := range recs["AIN2"].Values {
		if !math.IsNaN(v) {
			t.Fatalf("AIN2 should be all NaN, got %v", recs["AIN2"].Values)
		}
	}
}

func TestAccumulator_OrdersOutOfOrderReads(t *testing.T) {
	a := NewAccumulator(1, 0, nil)

	a.Add(read(2, 3))
	a.Add(read(1, 2))
	if a.Pending() != 2 || len(a.Flat()) != 0 {
		t.Fatalf("reads ahead of seq 0 must be held, pending=%d flat=%v", a.Pending(), a.Flat())
	}
	a.Add(read(0, 1))
	a.Add(read(3, 4))

	if a.Pending() != 0 {
		t.Fatalf("pending=%d after gap filled", a.Pending())
	}
	for i, v := range a.Flat() {
		if v != float64(i+1) {
			t.Fatalf("flat=%v", a.Flat())
		}
	}
	times := a.ReadTimes()
	for i, ts := range times {
		if ts.Unix() != int64(i) {
			t.Fatalf("read times out of order: %v", times)
		}
	}
}

func TestAccumulator_RunFlushesGaps(t *testing.T) {
	a := NewAccumulator(1, 0, nil)
	in := make(chan Read, 3)
	in <- read(0, 1)
	in <- read(3, 4)
	in <- read(2, 3)
	close(in)

	a.Run(in)

	got := a.Flat()
	want := []float64{1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("flat=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flat=%v want %v", got, want)
		}
	}
	if a.Totals().Reads != 3 {
		t.Fatalf("reads=%d", a.Totals().Reads)
	}
}

func TestAccumulator_DropsDuplicates(t *testing.T) {
	a := NewAccumulator(1, 0, nil)
	a.Add(read(0, 1))
	a.Add(read(0, 9))
	if len(a.Flat()) != 1 || a.Flat()[0] != 1 {
		t.Fatalf("duplicate applied: %v", a.Flat())
	}
}

func TestAccumulator_DoesNotMutateInput(t *testing.T) {
	a := NewAccumulator(1, 0, nil)
	samples := []float64{transport.SkippedSample}
	a.Add(Read{Seq: 0, Result: transport.ReadResult{Samples: samples}})
	if samples[0] != transport.SkippedSample {
		t.Fatalf("caller slice mutated: %v", samples)
	}
}
