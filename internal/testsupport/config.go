package testsupport

import (
	"path/filepath"
	"testing"

	"aivp/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a fresh temp directory with every path
// already absolute. It applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.RootDir = base
	cfgVal.Paths.DBPath = filepath.Join(base, "db", "aivp.sqlite3")
	cfgVal.Paths.PIDFile = filepath.Join(base, "daemon.pid")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Daemon.HeartbeatSeconds = 0.01
	cfgVal.Daemon.StopTimeoutSeconds = 0.05
	cfgVal.Daemon.StopPollIntervalMS = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithMigrationVersion overrides the storage migration version.
func WithMigrationVersion(version string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.MigrationVersion = version
	}
}

// WithMaxHeartbeats overrides the daemon beat budget.
func WithMaxHeartbeats(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.MaxHeartbeats = n
	}
}

// WithLogFormat overrides the log format.
func WithLogFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Logging.Format = format
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.RootDir
}
