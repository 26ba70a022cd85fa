// internal/transport/modbus/stream_test.go
package modbus

import (
	"math"
	"testing"
	"time"

	"github.com/tamzrod/labjack-streamer/internal/transport"
)

func TestStream_ReadsScanList(t *testing.T) {
	bus := newFakeBus()
	bus.set("AIN0", 1.5)
	bus.set("AIN1", -2.25)
	c := newTestConn(bus)
	if err := c.WriteLibraryConfig(transport.LibStreamReceiveTimeoutMS, 5000); err != nil {
		t.Fatalf("library err=%v", err)
	}

	rate, err := c.StreamStart(3, []int{0, 2}, 200)
	if err != nil || rate != 200 {
		t.Fatalf("StreamStart rate=%v err=%v", rate, err)
	}
	defer c.StreamStop()

	res, err := c.StreamRead()
	if err != nil {
		t.Fatalf("StreamRead err=%v", err)
	}
	if len(res.Samples) != 6 {
		t.Fatalf("samples=%v", res.Samples)
	}
	for i, v := range res.Samples {
		want := 1.5
		if i%2 == 1 {
			want = -2.25
		}
		if v != want && v != transport.SkippedSample {
			t.Fatalf("sample %d = %v", i, v)
		}
	}
	if res.DeviceBacklog != 0 || res.DriverBacklog < 0 {
		t.Fatalf("backlogs device=%d driver=%d", res.DeviceBacklog, res.DriverBacklog)
	}
}

func TestStream_AllOrNoneReturnsNoScans(t *testing.T) {
	c := newTestConn(newFakeBus())
	if err := c.WriteLibraryConfig(transport.LibStreamScansReturn, transport.ScansReturnAllOrNone); err != nil {
		t.Fatalf("library err=%v", err)
	}
	if _, err := c.StreamStart(10000, []int{0}, 100); err != nil {
		t.Fatalf("StreamStart err=%v", err)
	}
	defer c.StreamStop()

	if _, err := c.StreamRead(); !transport.HasCode(err, transport.CodeNoScansReturned) {
		t.Fatalf("expected NO_SCANS_RETURNED, got %v", err)
	}
}

func TestStream_StateErrors(t *testing.T) {
	c := newTestConn(newFakeBus())

	if _, err := c.StreamRead(); !transport.HasCode(err, transport.CodeStreamNotRunning) {
		t.Fatalf("read without stream: %v", err)
	}
	if err := c.StreamStop(); !transport.HasCode(err, transport.CodeStreamNotRunning) {
		t.Fatalf("stop without stream: %v", err)
	}
	if _, err := c.StreamStart(1, []int{43900}, 100); !transport.HasCode(err, transport.CodeInvalidName) {
		t.Fatalf("non-streamable address: %v", err)
	}

	if _, err := c.StreamStart(1, []int{0}, 100); err != nil {
		t.Fatalf("StreamStart err=%v", err)
	}
	if _, err := c.StreamStart(1, []int{0}, 100); !transport.HasCode(err, transport.CodeStreamIsActive) {
		t.Fatalf("second start: %v", err)
	}
	if err := c.WriteNames([]string{"STREAM_SETTLING_US"}, []float64{0}); !transport.HasCode(err, transport.CodeStreamIsActive) {
		t.Fatalf("stream register write while streaming: %v", err)
	}
	if err := c.WriteNames([]string{"AIN_ALL_RANGE"}, []float64{10}); err != nil {
		t.Fatalf("non-stream register write while streaming: %v", err)
	}
	if err := c.StreamStop(); err != nil {
		t.Fatalf("StreamStop err=%v", err)
	}
	if err := c.WriteNames([]string{"STREAM_SETTLING_US"}, []float64{0}); err != nil {
		t.Fatalf("write after stop: %v", err)
	}
}

func TestStream_TriggerTimeout(t *testing.T) {
	c := newTestConn(newFakeBus())
	if err := c.WriteNames(
		[]string{"STREAM_TRIGGER_INDEX", "DIO0_EF_INDEX", "DIO0_EF_CONFIG_A"},
		[]float64{2000, 12, 1},
	); err != nil {
		t.Fatalf("WriteNames err=%v", err)
	}
	if err := c.WriteLibraryConfig(transport.LibStreamReceiveTimeoutMS, 50); err != nil {
		t.Fatalf("library err=%v", err)
	}
	if _, err := c.StreamStart(1, []int{0}, 200); err != nil {
		t.Fatalf("StreamStart err=%v", err)
	}
	defer c.StreamStop()

	if _, err := c.StreamRead(); !transport.HasCode(err, transport.CodeReceiveTimeout) {
		t.Fatalf("expected receive timeout while waiting for trigger, got %v", err)
	}
}

func TestStream_TriggerRisingEdge(t *testing.T) {
	bus := newFakeBus()
	bus.set("AIN0", 3)
	c := newTestConn(bus)
	if err := c.WriteNames(
		[]string{"STREAM_TRIGGER_INDEX", "DIO0_EF_INDEX", "DIO0_EF_CONFIG_A"},
		[]float64{2000, 12, 1},
	); err != nil {
		t.Fatalf("WriteNames err=%v", err)
	}
	if err := c.WriteLibraryConfig(transport.LibStreamReceiveTimeoutMS, 5000); err != nil {
		t.Fatalf("library err=%v", err)
	}

	if _, err := c.StreamStart(2, []int{0}, 200); err != nil {
		t.Fatalf("StreamStart err=%v", err)
	}
	defer c.StreamStop()

	go func() {
		time.Sleep(50 * time.Millisecond)
		bus.set("DIO0", 1)
	}()

	res, err := c.StreamRead()
	if err != nil {
		t.Fatalf("StreamRead err=%v", err)
	}
	if len(res.Samples) != 2 {
		t.Fatalf("samples=%v", res.Samples)
	}
}

func TestTriggerWait_FromRegisters(t *testing.T) {
	c := newTestConn(newFakeBus())
	if w := c.triggerWait(); w != nil {
		t.Fatalf("no trigger configured, got %+v", w)
	}
	if err := c.WriteNames([]string{"STREAM_TRIGGER_INDEX", "FIO2_EF_INDEX"}, []float64{2002, 4}); err != nil {
		t.Fatalf("WriteNames err=%v", err)
	}
	w := c.triggerWait()
	if w == nil || w.dio != 2 || w.rising {
		t.Fatalf("frequency in falling on DIO2 expected, got %+v", w)
	}
}

func TestClose_StopsStream(t *testing.T) {
	c := newTestConn(newFakeBus())
	if _, err := c.StreamStart(1, []int{0}, 100); err != nil {
		t.Fatalf("StreamStart err=%v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if c.streaming() {
		t.Fatalf("stream still running after Close")
	}
}

func TestStream_RejectsUnpollableScanRate(t *testing.T) {
	c := newTestConn(newFakeBus())
	for _, rate := range []float64{2e9, math.Inf(1)} {
		if _, err := c.StreamStart(1, []int{0}, rate); err == nil {
			t.Fatalf("StreamStart(%g) should fail", rate)
		}
	}

	// a rejected start leaves no stream behind
	if _, err := c.StreamStart(1, []int{0}, 100); err != nil {
		t.Fatalf("StreamStart err=%v", err)
	}
	if err := c.StreamStop(); err != nil {
		t.Fatalf("StreamStop err=%v", err)
	}
}
