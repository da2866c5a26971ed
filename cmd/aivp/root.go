package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var dbPathFlag string
	var pidFileFlag string

	ctx := newCommandContext(&configFlag, &dbPathFlag, &pidFileFlag)

	rootCmd := &cobra.Command{
		Use:           "aivp",
		Short:         "Local-first runtime for focused AI VPs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Runtime SQLite database path (overrides paths.db_path)")
	rootCmd.PersistentFlags().StringVar(&pidFileFlag, "pid-file", "", "Daemon pid lock file (overrides paths.pid_file)")

	rootCmd.AddCommand(newDaemonCommand(ctx))
	rootCmd.AddCommand(newDBCommand(ctx))
	rootCmd.AddCommand(newBusCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}
