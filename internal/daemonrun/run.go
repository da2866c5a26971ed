package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"aivp/internal/config"
	"aivp/internal/daemon"
	"aivp/internal/logging"
	"aivp/internal/runtimedb"
)

// Options configures a foreground daemon run.
type Options struct {
	Start daemon.StartOptions
	// Logger overrides the config-derived logger.
	Logger *slog.Logger
	// Runner adds options on top of the config-derived ones.
	Runner []daemon.Option
}

// NewRunner builds a runner from the configured pid file and stop timing.
func NewRunner(cfg *config.Config, logger *slog.Logger, extra ...daemon.Option) (*daemon.Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	opts := []daemon.Option{
		daemon.WithLogger(logger),
		daemon.WithStopTimeout(cfg.StopTimeout()),
		daemon.WithPollInterval(cfg.StopPollInterval()),
	}
	opts = append(opts, extra...)
	return daemon.NewRunner(cfg.Paths.PIDFile, opts...), nil
}

// StartOptions derives the heartbeat loop settings from cfg.
func StartOptions(cfg *config.Config) daemon.StartOptions {
	return daemon.StartOptions{
		Heartbeat: cfg.HeartbeatInterval(),
		MaxBeats:  cfg.Daemon.MaxHeartbeats,
	}
}

// Start prepares runtime directories and storage, then runs the daemon in the
// foreground until it exits.
func Start(ctx context.Context, cfg *config.Config, opts Options) (daemon.Result, error) {
	runner, err := prepare(ctx, cfg, opts)
	if err != nil {
		return daemon.Result{}, err
	}
	return runner.Start(ctx, opts.Start)
}

// Restart stops any running daemon, then runs a new one in the foreground.
func Restart(ctx context.Context, cfg *config.Config, opts Options) (daemon.Result, error) {
	runner, err := prepare(ctx, cfg, opts)
	if err != nil {
		return daemon.Result{}, err
	}
	return runner.Restart(ctx, opts.Start)
}

func prepare(ctx context.Context, cfg *config.Config, opts Options) (*daemon.Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare runtime directories: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	result, err := runtimedb.Bootstrap(ctx, cfg.Paths.DBPath, cfg.Storage.MigrationVersion)
	if err != nil {
		logger.Error("bootstrap runtime database",
			logging.Error(err),
			logging.String(logging.FieldDBPath, cfg.Paths.DBPath),
		)
		return nil, err
	}
	if !result.WALEnabled {
		logging.WarnWithContext(logger, "runtime database is not in WAL mode", "runtime_db_wal_disabled",
			logging.String(logging.FieldDBPath, result.Path),
			logging.String("journal_mode", result.JournalMode),
			logging.String(logging.FieldErrorHint, "check filesystem support for shared memory files"),
			logging.String(logging.FieldImpact, "concurrent bus readers may block writers"),
		)
	} else {
		logger.Info("runtime database ready",
			logging.String(logging.FieldEventType, "runtime_db_ready"),
			logging.String(logging.FieldDBPath, result.Path),
			logging.String("migration_version", result.MigrationVersion),
		)
	}

	return NewRunner(cfg, logger, opts.Runner...)
}
