package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aivp/internal/config"
	"aivp/internal/daemon"
	"aivp/internal/daemonrun"
)

type heartbeatFlags struct {
	seconds float64
	max     int
}

func (f *heartbeatFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.seconds, "heartbeat-seconds", 0, "Seconds between heartbeats (default from daemon.heartbeat_seconds)")
	cmd.Flags().IntVar(&f.max, "max-heartbeats", 0, "Exit after this many heartbeats; negative runs until signaled (default from daemon.max_heartbeats)")
}

func (f *heartbeatFlags) startOptions(cmd *cobra.Command, cfg *config.Config) (daemon.StartOptions, error) {
	opts := daemonrun.StartOptions(cfg)
	if cmd.Flags().Changed("heartbeat-seconds") {
		if f.seconds <= 0 {
			return daemon.StartOptions{}, fmt.Errorf("--heartbeat-seconds must be positive")
		}
		opts.Heartbeat = time.Duration(f.seconds * float64(time.Second))
	}
	if cmd.Flags().Changed("max-heartbeats") {
		opts.MaxBeats = f.max
		if opts.MaxBeats < 0 {
			opts.MaxBeats = daemon.UnlimitedBeats
		}
	}
	return opts, nil
}

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon lifecycle controls",
	}
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonRestartCommand(ctx))
	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var flags heartbeatFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := flags.startOptions(cmd, cfg)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			result, err := daemonrun.Start(cmd.Context(), cfg, daemonrun.Options{Start: opts, Logger: logger})
			if err != nil {
				return err
			}
			return writeJSONWithCode(cmd, result, daemonExitCode(result))
		},
	}
	flags.register(cmd)
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon recorded in the pid file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runner, err := daemonrun.NewRunner(cfg, logger)
			if err != nil {
				return err
			}
			result, err := runner.Stop(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSONWithCode(cmd, result, daemonExitCode(result))
		},
	}
}

func newDaemonRestartCommand(ctx *commandContext) *cobra.Command {
	var flags heartbeatFlags
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the running daemon and run a new one in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := flags.startOptions(cmd, cfg)
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			result, err := daemonrun.Restart(cmd.Context(), cfg, daemonrun.Options{Start: opts, Logger: logger})
			if err != nil {
				return err
			}
			return writeJSONWithCode(cmd, result, daemonExitCode(result))
		},
	}
	flags.register(cmd)
	return cmd
}

func daemonExitCode(result daemon.Result) int {
	switch result.Status {
	case daemon.StatusStarted, daemon.StatusRestartComplete, daemon.StatusStopped, daemon.StatusNotRunning:
		return exitOK
	case daemon.StatusAlreadyRunning:
		return exitAlreadyRunning
	case daemon.StatusStopRequested:
		return exitStopRequested
	default:
		return exitFailure
	}
}
