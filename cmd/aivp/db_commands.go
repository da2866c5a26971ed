package main

import (
	"github.com/spf13/cobra"

	"aivp/internal/runtimedb"
)

type versionOutput struct {
	Path             string `json:"db_path"`
	MigrationVersion string `json:"migration_version,omitempty"`
	Found            bool   `json:"found"`
}

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Runtime database operations",
	}
	dbCmd.AddCommand(newDBInitCommand(ctx))
	dbCmd.AddCommand(newDBVersionCommand(ctx))
	dbCmd.AddCommand(newDBSetVersionCommand(ctx))
	return dbCmd
}

func newDBInitCommand(ctx *commandContext) *cobra.Command {
	var migrationVersion string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the runtime database with WAL journaling and schema state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			version := cfg.Storage.MigrationVersion
			if cmd.Flags().Changed("migration-version") {
				version = migrationVersion
			}
			result, err := runtimedb.Bootstrap(cmd.Context(), cfg.Paths.DBPath, version)
			if err != nil {
				return err
			}
			code := exitOK
			if !result.WALEnabled {
				code = exitWALDisabled
			}
			return writeJSONWithCode(cmd, result, code)
		},
	}
	cmd.Flags().StringVar(&migrationVersion, "migration-version", "", "Version recorded when the database is new (default from storage.migration_version)")
	return cmd
}

func newDBVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the recorded migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			version, found, err := runtimedb.GetVersion(cmd.Context(), cfg.Paths.DBPath)
			if err != nil {
				return err
			}
			code := exitOK
			if !found {
				code = exitFailure
			}
			return writeJSONWithCode(cmd, versionOutput{Path: cfg.Paths.DBPath, MigrationVersion: version, Found: found}, code)
		},
	}
}

func newDBSetVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-version <version>",
		Short: "Record a new migration version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := runtimedb.SetVersion(cmd.Context(), cfg.Paths.DBPath, args[0]); err != nil {
				return err
			}
			version, found, err := runtimedb.GetVersion(cmd.Context(), cfg.Paths.DBPath)
			if err != nil {
				return err
			}
			return writeJSON(cmd, versionOutput{Path: cfg.Paths.DBPath, MigrationVersion: version, Found: found})
		},
	}
}
