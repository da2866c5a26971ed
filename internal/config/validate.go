package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DBPath == "" {
		return errors.New("paths.db_path must be set")
	}
	if c.Paths.PIDFile == "" {
		return errors.New("paths.pid_file must be set")
	}
	if filepath.Clean(c.Paths.DBPath) == filepath.Clean(c.Paths.PIDFile) {
		return errors.New("paths.db_path and paths.pid_file must differ")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.HeartbeatSeconds <= 0 {
		return errors.New("daemon.heartbeat_seconds must be positive")
	}
	if c.Daemon.StopTimeoutSeconds < 0 {
		return errors.New("daemon.stop_timeout_seconds must not be negative")
	}
	if c.Daemon.StopPollIntervalMS <= 0 {
		return errors.New("daemon.stop_poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateBus() error {
	if c.Bus.ListLimit < 0 {
		return errors.New("bus.list_limit must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
