package testsupport

import (
	"context"
	"testing"
	"time"

	"aivp/internal/bus"
	"aivp/internal/config"
	"aivp/internal/runtimedb"
)

// MustOpenBus opens the event bus at the config's database path.
func MustOpenBus(t testing.TB, cfg *config.Config, opts ...bus.Option) *bus.Store {
	t.Helper()

	opts = append([]bus.Option{bus.WithMigrationVersion(cfg.Storage.MigrationVersion)}, opts...)
	store, err := bus.Open(context.Background(), cfg.Paths.DBPath, opts...)
	if err != nil {
		t.Fatalf("bus.Open: %v", err)
	}
	return store
}

// MustBootstrap initializes the runtime database at the config's path.
func MustBootstrap(t testing.TB, cfg *config.Config) runtimedb.Result {
	t.Helper()

	result, err := runtimedb.Bootstrap(context.Background(), cfg.Paths.DBPath, cfg.Storage.MigrationVersion)
	if err != nil {
		t.Fatalf("runtimedb.Bootstrap: %v", err)
	}
	return result
}

// StepClock returns a clock that starts at start and advances by step on every call.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	current := start.Add(-step)
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}
