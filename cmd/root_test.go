//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"accounts", "artifacts", "draft", "review", "backfill", "agent", "applied", "runs", "notion", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "workbench", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestReviewCommand_Flags(t *testing.T) {
	for _, name := range []string{"approve", "reject", "approve-all", "reject-all", "decisions", "export", "yes"} {
		require.NotNil(t, reviewCmd.Flags().Lookup(name), "review command should have --%s flag", name)
	}
	assert.Equal(t, "false", reviewCmd.Flags().Lookup("yes").DefValue)
}

func TestDraftCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range draftCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"show", "export", "approve"} {
		assert.True(t, names[name], "expected draft subcommand %q not found", name)
	}
	require.NotNil(t, draftApproveCmd.Flags().Lookup("write"))
}

func TestAgentRunCommand_Flags(t *testing.T) {
	require.NotNil(t, agentRunCmd.Flags().Lookup("call"))
	require.NotNil(t, agentRunCmd.Flags().Lookup("mode"))

	require.NotNil(t, agentRunAllCmd.Flags().Lookup("mode"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
