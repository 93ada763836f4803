package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetd",
		Short: "Fleet plugin runtime",
		Long: `fleetd hosts launcher plugins. Each plugin runs in its own isolated
JavaScript host and talks to the runtime over an RPC bridge; views are
compiled and streamed to launcher clients over HTTP.

Configuration comes from FLEET_* environment variables and an optional
YAML file named by FLEET_CONFIG_FILE or --config.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newInstallCommand())
	rootCmd.AddCommand(newRunCommand())

	return rootCmd
}
