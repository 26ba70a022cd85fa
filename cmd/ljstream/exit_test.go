// cmd/ljstream/exit_test.go
package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/tamzrod/labjack-streamer/internal/config"
	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/runner"
	"github.com/tamzrod/labjack-streamer/internal/sink"
	"github.com/tamzrod/labjack-streamer/internal/transport"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitCode(t *testing.T) {
	readTimeout := transport.NewError("stream read", transport.CodeReceiveTimeout, nil)
	stopFail := fault.New(fault.KindStreamRead, "stop", transport.NewError("stream stop", transport.CodeStreamNotRunning, nil)).
		WithStage(fault.StageStop)
	readFail := fault.New(fault.KindStreamRead, "read", readTimeout).WithStage(fault.StageRead)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"validation", fault.Validation("rate must be positive"), exitConfig},
		{"config", fmt.Errorf("%w: acquisition.channels: required", config.ErrInvalid), exitConfig},
		{"connection", fault.New(fault.KindConnection, "open", readTimeout), exitFault},
		{"read", readFail, exitFault},
		{"stop only", stopFail, exitStopFailed},
		{"read and stop", errors.Join(readFail, stopFail), exitFault},
		{"plain", errors.New("boom"), exitFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestOutcomeError(t *testing.T) {
	run := &sink.Run{ID: "r1"}
	acq := fault.New(fault.KindConnection, "open", nil)
	sinkErr := errors.New("sink redis: timeout")

	tests := []struct {
		name string
		out  runner.Outcome
		want int
	}{
		{"ok", runner.Outcome{Run: run}, exitOK},
		{"sink only", runner.Outcome{Run: run, SinkErr: sinkErr}, exitSink},
		{"acquisition wins", runner.Outcome{Run: run, Err: acq, SinkErr: sinkErr}, exitFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := outcomeError(tt.out)
			if tt.want == exitOK {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			var exitCoder cli.ExitCoder
			if !errors.As(err, &exitCoder) {
				t.Fatalf("error should be cli.ExitCoder, got %T", err)
			}
			if exitCoder.ExitCode() != tt.want {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.want)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := configError(errors.New("device.type: unknown"))
	var exitCoder cli.ExitCoder
	if !errors.As(err, &exitCoder) || exitCoder.ExitCode() != exitConfig {
		t.Fatalf("err = %v", err)
	}
	if err.Error() != "config: device.type: unknown" {
		t.Errorf("msg = %q", err.Error())
	}
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	want := []string{"stream", "info", "version"}
	if len(app.Commands) != len(want) {
		t.Fatalf("commands = %d, want %d", len(app.Commands), len(want))
	}
	for i, name := range want {
		if app.Commands[i].Name != name {
			t.Errorf("command[%d] = %q, want %q", i, app.Commands[i].Name, name)
		}
	}

	stream := app.Commands[0]
	for _, flag := range []string{"config", "channels", "rate", "duration", "scans-per-read"} {
		found := false
		for _, f := range stream.Flags {
			for _, n := range f.Names() {
				if n == flag {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("stream is missing --%s", flag)
		}
	}
}
