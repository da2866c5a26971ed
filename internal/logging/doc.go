// Package logging assembles structured slog loggers and formatting helpers used
// across the aivp runtime.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and defines the standardized field keys (component, event_id, pid, lock
// path) so the daemon, the event bus, and the CLI emit log lines with the same
// shape. The package also provides a no-op logger for tests and for library
// code constructed without an explicit logger.
package logging
