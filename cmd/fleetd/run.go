package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/fleet/pkg/plugins"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file> <command>",
		Short: "Load a package and execute one command",
		Long: `Run loads a package into a throwaway runtime, executes one command and
prints the result as JSON. Events the plugin raises (toasts, navigation,
log lines) are printed to stderr as they arrive.

Example:
  fleetd run notes.fcp list
  fleetd run notes.fcp save --args '{"title":"groceries"}'`,
		Args: cobra.ExactArgs(2),
		RunE: runCommand,
	}
	cmd.Flags().String("args", "", "command arguments as JSON")
	cmd.Flags().String("mode", "", "execution mode override (view or no-view)")
	cmd.Flags().Duration("timeout", 0, "command timeout (defaults to FLEET_COMMAND_TIMEOUT)")
	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.Plugins.CommandTimeout = timeout
	}

	var commandArgs json.RawMessage
	if raw, _ := cmd.Flags().GetString("args"); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("--args is not valid JSON")
		}
		commandArgs = json.RawMessage(raw)
	}
	mode, _ := cmd.Flags().GetString("mode")

	cfg.Storage.Type = "memory"
	stack, err := newPluginStack(cfg, runtimeLogger(cfg), stackOptions{})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stack.close(ctx)
	}()

	var mu sync.Mutex
	stderr := json.NewEncoder(cmd.ErrOrStderr())
	stack.manager.Subscribe(func(ev plugins.Event) {
		if ev.Type == plugins.EventPluginRegistered {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_ = stderr.Encode(ev)
	})

	plugin, err := stack.loader.LoadFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	result, err := stack.manager.Execute(cmd.Context(), plugins.Invocation{
		PluginID: plugin.ID,
		Command:  args[1],
		Mode:     mode,
		Args:     commandArgs,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
