package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install <file> [file...]",
		Short: "Install plugin packages into the package directory",
		Long: `Install validates each package and stores it under the package directory
(FLEET_PACKAGE_DIR). A running fleetd picks stored packages up on its next
start; use the API or the watch directory to install into a live runtime.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runInstall,
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	stack, err := newPluginStack(cfg, runtimeLogger(cfg), stackOptions{persist: true})
	if err != nil {
		return err
	}
	defer stack.close(context.Background())

	out := cmd.OutOrStdout()
	var failed int
	for _, path := range args {
		plugin, err := stack.loader.LoadFile(cmd.Context(), path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "Installed %s %s (%d commands)\n",
			plugin.ID, plugin.Manifest.Version, len(plugin.Manifest.Commands))
		for _, w := range plugin.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d packages failed to install", failed, len(args))
	}
	return nil
}
