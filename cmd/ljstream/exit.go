// cmd/ljstream/exit.go
package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tamzrod/labjack-streamer/internal/config"
	"github.com/tamzrod/labjack-streamer/internal/fault"
	"github.com/tamzrod/labjack-streamer/internal/runner"
)

const (
	exitOK         = 0
	exitFault      = 1
	exitConfig     = 2
	exitStopFailed = 3
	exitSink       = 4
)

// configError wraps a configuration problem as exit code 2.
func configError(err error) error {
	return cli.Exit(fmt.Sprintf("config: %v", err), exitConfig)
}

// exitCode maps an acquisition error to an exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, fault.ErrValidation), errors.Is(err, config.ErrInvalid):
		return exitConfig
	case fault.IsStopFailure(err) && !errors.Is(err, &fault.Fault{Kind: fault.KindStreamRead, Stage: fault.StageRead}):
		return exitStopFailed
	default:
		return exitFault
	}
}

// outcomeError turns a run outcome into the command's error.
// The acquisition error wins over a sink error.
func outcomeError(out runner.Outcome) error {
	if code := exitCode(out.Err); code != exitOK {
		return cli.Exit(out.Err.Error(), code)
	}
	if out.SinkErr != nil {
		return cli.Exit(fmt.Sprintf("delivery: %v", out.SinkErr), exitSink)
	}
	return nil
}
