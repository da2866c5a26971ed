package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"aivp/internal/config"
	"aivp/internal/logging"
)

type commandContext struct {
	configFlag  *string
	dbPathFlag  *string
	pidFileFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, dbPathFlag, pidFileFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		dbPathFlag:  dbPathFlag,
		pidFileFlag: pidFileFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if override := flagValue(c.dbPathFlag); override != "" {
			if cfg.Paths.DBPath, err = config.ExpandPath(override); err != nil {
				c.configErr = fmt.Errorf("--db-path: %w", err)
				return
			}
		}
		if override := flagValue(c.pidFileFlag); override != "" {
			if cfg.Paths.PIDFile, err = config.ExpandPath(override); err != nil {
				c.configErr = fmt.Errorf("--pid-file: %w", err)
				return
			}
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
