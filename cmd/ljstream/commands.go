// cmd/ljstream/commands.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tamzrod/labjack-streamer/internal/config"
	"github.com/tamzrod/labjack-streamer/internal/logging"
	"github.com/tamzrod/labjack-streamer/internal/runner"
	"github.com/tamzrod/labjack-streamer/internal/session"
	"github.com/tamzrod/labjack-streamer/internal/sink"
	"github.com/tamzrod/labjack-streamer/internal/transport/modbus"
)

// Flags shared by every command that talks to a device.
var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML config file",
		EnvVars: []string{"LJSTREAM_CONFIG"},
	}
	deviceFlag = &cli.StringFlag{
		Name:  "device",
		Usage: "Device type: ANY, T4, T7, T8, DIGIT",
	}
	connectionFlag = &cli.StringFlag{
		Name:  "connection",
		Usage: "Connection type: ANY, USB, ETHERNET, WIFI",
	}
	identifierFlag = &cli.StringFlag{
		Name:    "identifier",
		Aliases: []string{"id"},
		Usage:   "Serial number, IP address or host, or ANY",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn, error",
	}
)

func deviceFlags() []cli.Flag {
	return []cli.Flag{configFlag, deviceFlag, connectionFlag, identifierFlag, logLevelFlag}
}

func streamCommand() *cli.Command {
	flags := append(deviceFlags(),
		&cli.StringSliceFlag{Name: "channels", Usage: "Channels to stream, e.g. AIN0,AIN1"},
		&cli.Float64Flag{Name: "rate", Usage: "Total sampling rate over all channels, Hz"},
		&cli.Float64Flag{Name: "duration", Usage: "Acquisition duration, seconds"},
		&cli.IntFlag{Name: "scans-per-read", Usage: "Scans per stream read; 0 reads everything at once"},
		&cli.StringFlag{Name: "msgpack-dir", Usage: "Write records as msgpack into this directory"},
		&cli.StringFlag{Name: "csv-dir", Usage: "Write records as CSV into this directory"},
	)
	return &cli.Command{
		Name:   "stream",
		Usage:  "Run one acquisition and deliver it to the configured sinks",
		Flags:  flags,
		Action: streamAction,
	}
}

func streamAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := logging.New(c.App.ErrWriter, cfg.Log.Level)
	if err != nil {
		return configError(err)
	}
	defer func() { _ = log.Sync() }()

	plan, err := runner.BuildPlan(cfg)
	if err != nil {
		return configError(err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := sink.BuildSinks(ctx, cfg.Sinks, log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("sinks: %v", err), exitSink)
	}
	defer func() { _ = sinks.Close() }()

	opener := &modbus.Opener{Timeout: time.Duration(cfg.Device.TimeoutMs) * time.Millisecond, Logger: log}
	out := runner.New(plan, opener, sinks, log).Run(ctx)

	report(c, log, out)
	return outcomeError(out)
}

// report prints the run summary as JSON on stdout and one human line.
func report(c *cli.Context, log *zap.Logger, out runner.Outcome) {
	summary := sink.NewSummary(out.Run)
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Warn("summary encode failed", zap.Error(err))
	}

	sugar := log.Sugar()
	if r := out.Run.Result; r != nil {
		sugar.Infof("run %s: %d scans x %d channels at %g Hz, %d skipped, partial=%t, %s",
			out.Run.ID, r.Scans, len(r.Channels), r.ScanRate, r.Skipped, r.Partial, r.Elapsed.Round(time.Millisecond))
	}
	for _, f := range out.Run.Files {
		sugar.Infof("wrote %s", f)
	}
	for _, o := range out.Run.Objects {
		sugar.Infof("uploaded %s", o)
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Connect and print the device identity",
		Flags: deviceFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := loadDeviceConfig(c)
			if err != nil {
				return err
			}
			log, err := logging.New(c.App.ErrWriter, cfg.Log.Level)
			if err != nil {
				return configError(err)
			}
			defer func() { _ = log.Sync() }()

			target, err := runner.BuildTarget(cfg.Device)
			if err != nil {
				return configError(err)
			}
			opener := &modbus.Opener{Timeout: time.Duration(cfg.Device.TimeoutMs) * time.Millisecond, Logger: log}
			err = session.With(opener, target, log, func(s *session.Session) error {
				_, err := fmt.Fprintln(c.App.Writer, s.String())
				return err
			})
			if err != nil {
				return cli.Exit(err.Error(), exitCode(err))
			}
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintf(c.App.Writer, "ljstream %s (commit: %s)\n", version, commit)
			return err
		},
	}
}

// loadConfig reads --config, applies flag overrides, validates and
// normalizes. Errors carry exit code 2.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := readConfig(c)
	if err != nil {
		return nil, err
	}
	applyStreamFlags(c, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, configError(err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// loadDeviceConfig is loadConfig for commands that do not acquire, so the
// acquisition section is not required.
func loadDeviceConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := readConfig(c)
	if err != nil {
		return nil, err
	}
	config.Normalize(cfg)
	if _, err := runner.BuildTarget(cfg.Device); err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

func readConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, configError(err)
		}
		cfg = loaded
	}
	if c.IsSet("device") {
		cfg.Device.Type = c.String("device")
	}
	if c.IsSet("connection") {
		cfg.Device.Connection = c.String("connection")
	}
	if c.IsSet("identifier") {
		cfg.Device.Identifier = c.String("identifier")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	return cfg, nil
}

func applyStreamFlags(c *cli.Context, cfg *config.Config) {
	a := &cfg.Acquisition
	if c.IsSet("channels") {
		a.Channels = c.StringSlice("channels")
	}
	if c.IsSet("rate") {
		a.SamplingRate = c.Float64("rate")
	}
	if c.IsSet("duration") {
		a.DurationS = c.Float64("duration")
	}
	if c.IsSet("scans-per-read") {
		a.ScansPerRead = c.Int("scans-per-read")
	}
	if c.IsSet("msgpack-dir") {
		cfg.Sinks.Msgpack = &config.FileSinkConfig{Dir: c.String("msgpack-dir")}
	}
	if c.IsSet("csv-dir") {
		cfg.Sinks.CSV = &config.FileSinkConfig{Dir: c.String("csv-dir")}
	}
}
