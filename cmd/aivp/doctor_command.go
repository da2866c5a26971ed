package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"aivp/internal/config"
	"aivp/internal/pidlock"
	"aivp/internal/runtimedb"
)

type doctorReport struct {
	ConfigPath       string          `json:"config_path"`
	RootDir          string          `json:"root_dir"`
	DBPath           string          `json:"db_path"`
	PIDFile          string          `json:"pid_file"`
	LogDir           string          `json:"log_dir"`
	PathsExist       map[string]bool `json:"paths_exist"`
	MigrationVersion string          `json:"migration_version,omitempty"`
	DaemonPID        int             `json:"daemon_pid,omitempty"`
	DaemonRunning    bool            `json:"daemon_running"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Summarize runtime paths, storage, and daemon state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := buildDoctorReport(cmd, cfg, ctx.configPath)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			for _, line := range doctorLines(report, shouldColorize(out)) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func buildDoctorReport(cmd *cobra.Command, cfg *config.Config, configPath string) (doctorReport, error) {
	report := doctorReport{
		ConfigPath: configPath,
		RootDir:    cfg.Paths.RootDir,
		DBPath:     cfg.Paths.DBPath,
		PIDFile:    cfg.Paths.PIDFile,
		LogDir:     cfg.Logging.Dir,
		PathsExist: map[string]bool{
			"root_dir":  pathExists(cfg.Paths.RootDir),
			"db_parent": pathExists(filepath.Dir(cfg.Paths.DBPath)),
			"db_file":   pathExists(cfg.Paths.DBPath),
			"log_dir":   pathExists(cfg.Logging.Dir),
		},
	}
	version, found, err := runtimedb.GetVersion(cmd.Context(), cfg.Paths.DBPath)
	if err != nil {
		return doctorReport{}, err
	}
	if found {
		report.MigrationVersion = version
	}
	pid, ok, err := pidlock.ReadPID(cfg.Paths.PIDFile)
	if err != nil {
		return doctorReport{}, err
	}
	if ok {
		report.DaemonPID = pid
		report.DaemonRunning = pidlock.ProcessRunning(pid)
	}
	return report, nil
}

func doctorLines(report doctorReport, colorize bool) []string {
	var lines []string
	lines = append(lines, renderSectionHeader("Paths", colorize)...)
	for _, entry := range []struct {
		key   string
		label string
		path  string
	}{
		{"root_dir", "Root", report.RootDir},
		{"db_parent", "Database Dir", filepath.Dir(report.DBPath)},
		{"log_dir", "Log Dir", report.LogDir},
	} {
		kind := statusWarn
		if report.PathsExist[entry.key] {
			kind = statusOK
		}
		lines = append(lines, renderStatusLine(entry.label, kind, entry.path, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Storage", colorize)...)
	switch {
	case !report.PathsExist["db_file"]:
		lines = append(lines, renderStatusLine("Database", statusWarn, "Not initialized (run `aivp db init`)", colorize))
	case report.MigrationVersion == "":
		lines = append(lines, renderStatusLine("Database", statusError, "Missing schema state", colorize))
	default:
		lines = append(lines, renderStatusLine("Database", statusOK, "Migration "+report.MigrationVersion, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	switch {
	case report.DaemonPID == 0:
		lines = append(lines, renderStatusLine("Daemon", statusInfo, humanLabel("not_running"), colorize))
	case report.DaemonRunning:
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("%s (pid %d)", humanLabel("running"), report.DaemonPID), colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("Stale pid file (pid %d)", report.DaemonPID), colorize))
	}
	return lines
}

func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
