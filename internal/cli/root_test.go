package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// TestRootCommand_Help lists the public subcommands; the worker entry point
// stays hidden.
func TestRootCommand_Help(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "stress")
	assert.Contains(t, out, "counters")
	assert.Contains(t, out, "test")
	assert.Contains(t, out, "history")
	assert.NotContains(t, out, "worker")
}

// TestRootCommand_InvalidFormat is rejected before any subcommand runs.
func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := executeCommand(t, "--format", "xml", "counters", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

// TestRootCommand_UnknownCommand fails.
func TestRootCommand_UnknownCommand(t *testing.T) {
	_, err := executeCommand(t, "frobnicate")
	assert.Error(t, err)
}

// TestIsValidFormat covers the allowed formats.
func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func findSubcommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("subcommand %q not registered", name)
	return nil
}

// TestRootCommand_WorkerHidden keeps the re-exec target out of the surface.
func TestRootCommand_WorkerHidden(t *testing.T) {
	worker := findSubcommand(t, NewRootCommand(), "worker")
	assert.True(t, worker.Hidden)
}
