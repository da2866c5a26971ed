package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths locates the runtime root and the files the core subsystems share.
// DBPath and PIDFile may be relative; they resolve against RootDir.
type Paths struct {
	RootDir string `toml:"root_dir"`
	DBPath  string `toml:"db_path"`
	PIDFile string `toml:"pid_file"`
}

// Daemon contains heartbeat and stop timing for the foreground daemon.
type Daemon struct {
	HeartbeatSeconds   float64 `toml:"heartbeat_seconds"`
	MaxHeartbeats      int     `toml:"max_heartbeats"` // negative runs until signaled
	StopTimeoutSeconds float64 `toml:"stop_timeout_seconds"`
	StopPollIntervalMS int     `toml:"stop_poll_interval_ms"`
}

// Storage contains runtime database settings.
type Storage struct {
	MigrationVersion string `toml:"migration_version"`
}

// Bus contains event bus defaults used by the CLI.
type Bus struct {
	ListLimit int `toml:"list_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
}

// Config encapsulates all configuration values for aivp.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Daemon  Daemon  `toml:"daemon"`
	Storage Storage `toml:"storage"`
	Bus     Bus     `toml:"bus"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()
	if root, ok := os.LookupEnv(rootEnvVar); ok && strings.TrimSpace(root) != "" {
		cfg.Paths.RootDir = strings.TrimSpace(root)
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the runtime root and the parents of the database,
// pid file, and log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.RootDir,
		filepath.Dir(c.Paths.DBPath),
		filepath.Dir(c.Paths.PIDFile),
		c.Logging.Dir,
	} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HeartbeatInterval returns the configured heartbeat as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return secondsToDuration(c.Daemon.HeartbeatSeconds)
}

// StopTimeout returns how long a stop request waits for the daemon to exit.
func (c *Config) StopTimeout() time.Duration {
	return secondsToDuration(c.Daemon.StopTimeoutSeconds)
}

// StopPollInterval returns the liveness polling cadence used while stopping.
func (c *Config) StopPollInterval() time.Duration {
	return time.Duration(c.Daemon.StopPollIntervalMS) * time.Millisecond
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// resolveUnder expands pathValue and anchors relative values at root.
func resolveUnder(root, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", nil
	}
	if !strings.HasPrefix(pathValue, "~") && !filepath.IsAbs(pathValue) {
		pathValue = filepath.Join(root, pathValue)
	}
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
