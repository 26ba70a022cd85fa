// internal/runner/runner_test.go
package runner

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	cfg "github.com/tamzrod/labjack-streamer/internal/config"
	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/sink"
	"github.com/tamzrod/labjack-streamer/internal/status"
	"github.com/tamzrod/labjack-streamer/internal/transport"
	"github.com/tamzrod/labjack-streamer/internal/transport/transporttest"
	"github.com/tamzrod/labjack-streamer/internal/trigger"
)

type recorder struct {
	runs []*sink.Run
	err  error
}

func (r *recorder) Deliver(_ context.Context, run *sink.Run) error {
	r.runs = append(r.runs, run)
	return r.err
}

func baseConfig() *cfg.Config {
	c := &cfg.Config{
		Device: cfg.DeviceConfig{Type: "T7", Connection: "ethernet", Identifier: "192.168.1.92", Name: "bench"},
		Acquisition: cfg.AcquisitionConfig{
			Channels:     []string{"AIN0", "AIN1"},
			SamplingRate: 20,
			DurationS:    1,
			ScansPerRead: 5,
		},
	}
	cfg.Normalize(c)
	return c
}

func chunk(from int) transporttest.ReadStep {
	v := make([]float64, 10)
	for i := range v {
		v[i] = float64(from + i)
	}
	return transporttest.ReadStep{Result: transporttest.Samples(v...)}
}

func mustBuild(t *testing.T, c *cfg.Config) Plan {
	t.Helper()
	if err := cfg.Validate(c); err != nil {
		t.Fatalf("Validate err=%v", err)
	}
	p, err := BuildPlan(c)
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	return p
}

func TestBuildPlan(t *testing.T) {
	c := baseConfig()
	rng := 1.0
	c.Acquisition.RangeVolts = &rng
	c.Library = map[string]any{"LJM_STREAM_TRANSFERS_PER_SECOND": 100}
	c.Registers = map[string]any{"STREAM_SETTLING_US": 0}
	timeout := 0.25
	c.Trigger = &cfg.TriggerConfig{Channel: "FIO1", Mode: "frequency_in", Edge: "falling", TimeoutS: &timeout}

	p := mustBuild(t, c)
	if p.Target.DeviceType != transport.DeviceT7 || p.Target.ConnectionType != transport.ConnectionEthernet {
		t.Fatalf("target=%+v", p.Target)
	}
	if p.NegativeChannel != session.NegativeChannelGND || p.RangeVolts != 1 {
		t.Fatalf("analog = %d %g", p.NegativeChannel, p.RangeVolts)
	}
	if len(p.Library) != 1 || len(p.Registers) != 1 {
		t.Fatalf("library=%v registers=%v", p.Library, p.Registers)
	}
	if p.Trigger == nil || p.Trigger.EFIndex() != 4 {
		t.Fatalf("trigger=%+v", p.Trigger)
	}
	if d, ok := p.Trigger.Timeout.Duration(); !ok || d.Milliseconds() != 250 {
		t.Fatalf("timeout=%s", p.Trigger.Timeout)
	}
	if len(p.Options()) != 4 {
		t.Fatalf("options=%d", len(p.Options()))
	}
}

func TestBuildTrigger_DefaultsToIndefiniteRising(t *testing.T) {
	spec, err := BuildTrigger(cfg.TriggerConfig{Channel: "DIO0", Mode: "conditional_reset"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if spec.Edge != trigger.EdgeRising || !spec.Timeout.IsIndefinite() {
		t.Fatalf("spec=%s", spec)
	}
}

func TestRun_DeliversCompletedAcquisition(t *testing.T) {
	conn := &transporttest.Conn{
		InfoValue: transport.Info{DeviceType: transport.DeviceT7, SerialNumber: 470010001},
		Reads:     []transporttest.ReadStep{chunk(0), chunk(10)},
	}
	rec := &recorder{}
	r := New(mustBuild(t, baseConfig()), &transporttest.Opener{Conn: conn}, rec, zap.NewNop())

	out := r.Run(context.Background())
	if out.Err != nil || out.SinkErr != nil {
		t.Fatalf("err=%v sinkErr=%v", out.Err, out.SinkErr)
	}
	if len(rec.runs) != 1 || rec.runs[0] != out.Run {
		t.Fatalf("runs=%v", rec.runs)
	}

	run := out.Run
	if run.Result == nil || run.ID != run.Result.ID || run.Result.Samples != 20 {
		t.Fatalf("run=%+v", run)
	}
	if run.Device.SerialNumber != 470010001 || run.Status.Health != status.HealthOK || run.Status.DeviceName != "bench" {
		t.Fatalf("device=%+v status=%+v", run.Device, run.Status)
	}
	if !conn.Closed {
		t.Fatalf("connection left open")
	}

	// analog inputs go out in the stream configure batch
	first := conn.Writes()[0]
	names := map[string]bool{}
	for _, n := range first.Names {
		names[n] = true
	}
	if !names["AIN_ALL_NEGATIVE_CH"] || !names["AIN_ALL_RANGE"] || !names["STREAM_SETTLING_US"] {
		t.Fatalf("first write = %+v", first)
	}
}

func TestRun_RecoversFromActiveStream(t *testing.T) {
	writes := 0
	conn := &transporttest.Conn{
		Reads: []transporttest.ReadStep{chunk(0), chunk(10)},
		WriteNamesFunc: func([]string, []float64) error {
			writes++
			if writes == 1 {
				return transport.NewError("write", transport.CodeStreamIsActive, nil)
			}
			return nil
		},
	}
	rec := &recorder{}
	r := New(mustBuild(t, baseConfig()), &transporttest.Opener{Conn: conn}, rec, nil)

	out := r.Run(context.Background())
	if out.Err != nil {
		t.Fatalf("err=%v ops=%v", out.Err, conn.Ops())
	}

	ops := conn.Ops()
	stops := 0
	for _, op := range ops {
		if op == "StreamStart" {
			break
		}
		if op == "StreamStop" {
			stops++
		}
	}
	if stops != 1 {
		t.Fatalf("expected one recovery stop before start, ops=%v", ops)
	}
	if writes != 2 || out.Run.Result == nil || out.Run.Result.Samples != 20 {
		t.Fatalf("writes=%d result=%+v", writes, out.Run.Result)
	}
}

func TestRun_ConnectFailureStillDelivers(t *testing.T) {
	rec := &recorder{}
	opener := &transporttest.Opener{Err: transport.NewError("open", transport.CodeDeviceNotFound, nil)}
	r := New(mustBuild(t, baseConfig()), opener, rec, nil)

	out := r.Run(context.Background())
	if !errors.Is(out.Err, fault.ErrConnection) {
		t.Fatalf("expected connection fault, got %v", out.Err)
	}
	if len(rec.runs) != 1 || rec.runs[0].Result != nil || rec.runs[0].ID == "" {
		t.Fatalf("runs=%+v", rec.runs)
	}
	if rec.runs[0].Status.Health != status.HealthError ||
		rec.runs[0].Status.LastErrorCode != uint16(transport.CodeDeviceNotFound) {
		t.Fatalf("status=%+v", rec.runs[0].Status)
	}
}

func TestRun_SinkErrorIsSeparate(t *testing.T) {
	conn := &transporttest.Conn{Reads: []transporttest.ReadStep{chunk(0), chunk(10)}}
	errSink := errors.New("disk full")
	r := New(mustBuild(t, baseConfig()), &transporttest.Opener{Conn: conn}, &recorder{err: errSink}, nil)

	out := r.Run(context.Background())
	if out.Err != nil || !errors.Is(out.SinkErr, errSink) {
		t.Fatalf("err=%v sinkErr=%v", out.Err, out.SinkErr)
	}
}

func TestRun_ReadFaultReturnsPartialRun(t *testing.T) {
	conn := &transporttest.Conn{Reads: []transporttest.ReadStep{
		chunk(0),
		{Err: transport.NewError("stream read", transport.CodeReceiveTimeout, nil)},
	}}
	rec := &recorder{}
	r := New(mustBuild(t, baseConfig()), &transporttest.Opener{Conn: conn}, rec, nil)

	out := r.Run(context.Background())
	if !errors.Is(out.Err, fault.ErrStreamRead) {
		t.Fatalf("expected stream read fault, got %v", out.Err)
	}
	if out.Run.Result == nil || !out.Run.Result.Partial || out.Run.Result.Samples != 10 {
		t.Fatalf("result=%+v", out.Run.Result)
	}
	if !out.Run.Status.Partial || out.Run.Status.LastErrorCode != uint16(transport.CodeReceiveTimeout) {
		t.Fatalf("status=%+v", out.Run.Status)
	}
}
