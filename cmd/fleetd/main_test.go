package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fleet/pkg/plugins"
	"github.com/platinummonkey/fleet/pkg/worker"
)

const greeterManifest = `{
  "name": "greeter",
  "version": "1.2.0",
  "description": "Says hello",
  "author": "Ada",
  "commands": [
    {"name": "hello"},
    {"name": "shout", "mode": "no-view"}
  ]
}`

const greeterSource = `
import { Detail, createElement, showHUD } from "@fleet-chat/api";

export default function Command() {
  return createElement(Detail, { markdown: "# Hello" });
}

export function shout(args) {
  return showHUD("HELLO " + args.name);
}
`

func writePackage(t *testing.T, dir string) string {
	t.Helper()
	archive, err := plugins.EncodePackage(map[string][]byte{
		plugins.ManifestFile: []byte(greeterManifest),
		"index.js":           []byte(greeterSource),
	})
	require.NoError(t, err)
	path := filepath.Join(dir, "greeter.fcp")
	require.NoError(t, os.WriteFile(path, archive, 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("FLEET_CONFIG_FILE", "")
	t.Setenv("FLEET_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	root := newRootCommand("test", "none", "unknown")
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// TestRunCommand tests executing a view command from a package file
func TestRunCommand(t *testing.T) {
	path := writePackage(t, t.TempDir())

	stdout, _, err := execute(t, "run", path, "hello")
	require.NoError(t, err)

	var result worker.CommandResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, worker.ResultViewCreated, result.Kind)
	assert.NotNil(t, result.View)
}

// TestRunCommand_NoView tests arguments and event output
func TestRunCommand_NoView(t *testing.T) {
	path := writePackage(t, t.TempDir())

	stdout, stderr, err := execute(t, "run", path, "shout", "--args", `{"name":"world"}`)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"commandCompleted"`)
	assert.Contains(t, stderr, "HELLO world")
}

// TestRunCommand_Errors tests argument and command failures
func TestRunCommand_Errors(t *testing.T) {
	path := writePackage(t, t.TempDir())

	_, _, err := execute(t, "run", path)
	assert.Error(t, err)

	_, _, err = execute(t, "run", path, "shout", "--args", `{"name":`)
	assert.ErrorContains(t, err, "--args")

	_, _, err = execute(t, "run", path, "missing")
	assert.ErrorIs(t, err, worker.ErrCommandNotFound)

	_, _, err = execute(t, "run", filepath.Join(t.TempDir(), "nope.fcp"), "hello")
	assert.Error(t, err)
}

// TestInstallCommand tests storing packages in the package directory
func TestInstallCommand(t *testing.T) {
	dir := t.TempDir()
	packages := t.TempDir()
	t.Setenv("FLEET_PACKAGE_DIR", packages)

	broken := filepath.Join(dir, "broken.fcp")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0644))

	stdout, stderr, err := execute(t, "install", writePackage(t, dir), broken)
	assert.ErrorContains(t, err, "1 of 2 packages failed")
	assert.Contains(t, stdout, "Installed greeter 1.2.0 (2 commands)")
	assert.Contains(t, stderr, "broken.fcp")

	_, err = os.Stat(filepath.Join(packages, "greeter"))
	assert.NoError(t, err)
}
