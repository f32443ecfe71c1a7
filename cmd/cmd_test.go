package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckScenarioFile(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "ok.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`id: claim_basics
title: Claim Handling Basics
bot_messages:
  - content: "Hello there"
`), 0o644))
	assert.NoError(t, checkScenarioFile(valid))

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("id: [unterminated"), 0o644))
	assert.Error(t, checkScenarioFile(badYAML))

	badID := filepath.Join(dir, "badid.yaml")
	require.NoError(t, os.WriteFile(badID, []byte(`id: NOPE
title: Some Valid Title
bot_messages:
  - content: "Hi"
`), 0o644))
	assert.Error(t, checkScenarioFile(badID))

	assert.Error(t, checkScenarioFile(filepath.Join(dir, "missing.yaml")))
}

func TestRootCommandHasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["check"])
	assert.True(t, names["version"])
}
