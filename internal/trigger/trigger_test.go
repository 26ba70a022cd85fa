// internal/trigger/trigger_test.go
package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/transport"
	"github.com/tamzrod/labjack-streamer/internal/transport/transporttest"
)

func open(t *testing.T, conn *transporttest.Conn) *session.Session {
	t.Helper()
	s, err := session.Open(&transporttest.Opener{Conn: conn}, session.Target{
		DeviceType:     transport.DeviceT7,
		ConnectionType: transport.ConnectionEthernet,
	}, nil)
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	return s
}

func TestEFIndex(t *testing.T) {
	cases := []struct {
		spec Spec
		want int
	}{
		{Spec{Mode: ModeFrequencyIn, Edge: EdgeRising}, 3},
		{Spec{Mode: ModeFrequencyIn, Edge: EdgeFalling}, 4},
		{Spec{Mode: ModePulseWidthIn, Edge: EdgeRising}, 5},
		{Spec{Mode: ModePulseWidthIn, Edge: EdgeFalling}, 5},
		{Spec{Mode: ModeConditionalReset, Edge: EdgeRising}, 12},
		{Spec{Mode: ModeConditionalReset, Edge: EdgeFalling}, 12},
	}
	for _, tc := range cases {
		if got := tc.spec.EFIndex(); got != tc.want {
			t.Fatalf("%s %s: EFIndex=%d want %d", tc.spec.Mode, tc.spec.Edge, got, tc.want)
		}
	}
}

func TestTimeout_Wire(t *testing.T) {
	if Indefinite().wireMS() != 0 {
		t.Fatalf("indefinite must map to 0")
	}
	var zero Timeout
	if !zero.IsIndefinite() {
		t.Fatalf("zero Timeout should be indefinite")
	}
	if got := After(2500 * time.Millisecond).wireMS(); got != 2500 {
		t.Fatalf("2.5s wire=%v", got)
	}
	if got := After(100 * time.Microsecond).wireMS(); got != 1 {
		t.Fatalf("sub-millisecond timeout must not become indefinite, wire=%v", got)
	}
	if got := Seconds(0.25).wireMS(); got != 250 {
		t.Fatalf("Seconds(0.25) wire=%v", got)
	}
}

func TestValidate(t *testing.T) {
	bad := []Spec{
		{Channel: "AIN0", Mode: ModeConditionalReset, Edge: EdgeRising},
		{Channel: "DIO99", Mode: ModeConditionalReset, Edge: EdgeRising},
		{Channel: "DIO0", Mode: Mode(7), Edge: EdgeRising},
		{Channel: "DIO0", Mode: ModeFrequencyIn, Edge: Edge(4)},
		{Channel: "DIO0", Mode: ModeFrequencyIn, Timeout: After(0)},
		{Channel: "DIO0", Mode: ModeFrequencyIn, Timeout: Seconds(-1)},
	}
	for i, s := range bad {
		if err := s.Validate(); !errors.Is(err, fault.ErrValidation) {
			t.Fatalf("case %d: expected validation fault, got %v", i, err)
		}
	}
	ok := Spec{Channel: "fio2", Mode: ModeConditionalReset, Edge: EdgeFalling, Timeout: Seconds(1)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestConfigure_ConditionalReset(t *testing.T) {
	conn := &transporttest.Conn{}
	s := open(t, conn)

	err := Configure(s, Spec{Channel: "DIO0", Mode: ModeConditionalReset, Edge: EdgeRising, Timeout: Indefinite()})
	if err != nil {
		t.Fatalf("Configure err=%v", err)
	}

	var lib []transporttest.Call
	for _, c := range conn.Calls {
		if c.Op == "WriteLibraryConfig" {
			lib = append(lib, c)
		}
	}
	if len(lib) != 2 {
		t.Fatalf("expected 2 library writes, got %v", conn.Ops())
	}
	for _, c := range lib {
		switch c.Names[0] {
		case transport.LibStreamScansReturn:
			if c.Values[0] != transport.ScansReturnAll {
				t.Fatalf("scans return = %v", c.Values[0])
			}
		case transport.LibStreamReceiveTimeoutMS:
			if c.Values[0] != 0 {
				t.Fatalf("indefinite timeout should be 0 on the wire, got %v", c.Values[0])
			}
		default:
			t.Fatalf("unexpected library option %s", c.Names[0])
		}
	}

	w := conn.Writes()
	if len(w) != 3 {
		t.Fatalf("expected clear, configure, enable; got %d writes", len(w))
	}
	if w[0].Names[0] != "DIO0_EF_ENABLE" || w[0].Values[0] != 0 {
		t.Fatalf("first write must disable EF: %+v", w[0])
	}
	got := map[string]float64{}
	for i, n := range w[1].Names {
		got[n] = w[1].Values[i]
	}
	if got["STREAM_TRIGGER_INDEX"] != 2000 || got["DIO0_EF_INDEX"] != 12 || got["DIO0_EF_CONFIG_A"] != 1 {
		t.Fatalf("configure batch = %v", got)
	}
	last := w[len(w)-1]
	if last.Names[0] != "DIO0_EF_ENABLE" || last.Values[0] != 1 {
		t.Fatalf("enable must be the final write: %+v", last)
	}
}

func TestConfigure_FrequencyInHasNoEdgeRegister(t *testing.T) {
	conn := &transporttest.Conn{}
	s := open(t, conn)

	if err := Configure(s, Spec{Channel: "FIO1", Mode: ModeFrequencyIn, Edge: EdgeFalling, Timeout: Seconds(2)}); err != nil {
		t.Fatalf("Configure err=%v", err)
	}
	batch := conn.Writes()[1]
	got := map[string]float64{}
	for i, n := range batch.Names {
		got[n] = batch.Values[i]
	}
	if _, ok := got["FIO1_EF_CONFIG_A"]; ok {
		t.Fatalf("frequency in must not write the edge register: %v", got)
	}
	if got["FIO1_EF_INDEX"] != 4 || got["STREAM_TRIGGER_INDEX"] != 2001 {
		t.Fatalf("configure batch = %v", got)
	}
}

func TestConfigure_FailureLeavesTriggerDisabled(t *testing.T) {
	writes := 0
	conn := &transporttest.Conn{WriteNamesFunc: func(names []string, values []float64) error {
		writes++
		if writes == 2 {
			return transport.NewError("write", transport.CodeUnknown, nil)
		}
		return nil
	}}
	s := open(t, conn)

	err := Configure(s, Spec{Channel: "DIO0", Mode: ModeConditionalReset, Edge: EdgeRising})
	if !errors.Is(err, fault.ErrRegisterConfig) {
		t.Fatalf("expected register config fault, got %v", err)
	}
	for _, w := range conn.Writes() {
		for i, n := range w.Names {
			if n == "DIO0_EF_ENABLE" && w.Values[i] == 1 {
				t.Fatalf("trigger was enabled after a failed write")
			}
		}
	}
}

func TestConfigure_InvalidSpecDoesNoIO(t *testing.T) {
	conn := &transporttest.Conn{}
	s := open(t, conn)

	err := Configure(s, Spec{Channel: "DIO0", Mode: ModeConditionalReset, Timeout: After(-time.Second)})
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
	if len(conn.Calls) != 0 {
		t.Fatalf("no transport call expected, got %v", conn.Ops())
	}
}
