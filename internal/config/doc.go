// Package config loads, normalizes, and validates aivp runtime configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the AIVP_ROOT environment override
// for the runtime root directory. Relative database, pid-file, and log paths
// are resolved against that root so every collaborator sees absolute paths.
//
// Always obtain settings through this package so the daemon, the event bus,
// and the CLI agree on where the runtime database and lock file live.
package config
