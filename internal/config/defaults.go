package config

const (
	defaultRootDir            = "~/.local/share/aivp"
	defaultDBPath             = "db/aivp.sqlite3"
	defaultPIDFile            = "daemon.pid"
	defaultLogDir             = "logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultHeartbeatSeconds   = 30.0
	defaultMaxHeartbeats      = -1
	defaultStopTimeoutSeconds = 5.0
	defaultStopPollIntervalMS = 100
	defaultMigrationVersion   = "v1alpha1"
	defaultBusListLimit       = 100
	defaultConfigPath         = "~/.config/aivp/config.toml"
	projectConfigName         = "aivp.toml"
	rootEnvVar                = "AIVP_ROOT"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RootDir: defaultRootDir,
			DBPath:  defaultDBPath,
			PIDFile: defaultPIDFile,
		},
		Daemon: Daemon{
			HeartbeatSeconds:   defaultHeartbeatSeconds,
			MaxHeartbeats:      defaultMaxHeartbeats,
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
			StopPollIntervalMS: defaultStopPollIntervalMS,
		},
		Storage: Storage{
			MigrationVersion: defaultMigrationVersion,
		},
		Bus: Bus{
			ListLimit: defaultBusListLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
	}
}
