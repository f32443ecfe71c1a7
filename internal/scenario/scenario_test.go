package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chattrain/chattrain/internal/logging"
)

const validScenario = `id: claim_basics
title: Claim Handling Basics
description: Practice handling a first notice of loss call.
duration_minutes: 30
bot_messages:
  - content: "Hello, I'd like to file a claim for my car accident."
    expected_keywords: ["policy", "claim"]
  - content: "My policy number is AC-123456."
    expected_keywords: ["deductible", "coverage"]
llm_config:
  model: mock
  temperature: 0.7
  max_tokens: 200
documents:
  - filename: claims_guide.pdf
    title: Claims Guide
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScenario_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr bool
	}{
		{"valid", func(s *Scenario) {}, false},
		{"bad id uppercase", func(s *Scenario) { s.ID = "Claim_Basics" }, true},
		{"bad id too short", func(s *Scenario) { s.ID = "ab" }, true},
		{"short title", func(s *Scenario) { s.Title = "Hi" }, true},
		{"no bot messages", func(s *Scenario) { s.BotMessages = nil }, true},
		{"empty bot content", func(s *Scenario) { s.BotMessages[0].Content = "   " }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scenario{
				ID:    "claim_basics",
				Title: "Claim Handling Basics",
				BotMessages: []BotMessage{
					{Content: "Hello"},
				},
			}
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScenario_ExpectedKeywords(t *testing.T) {
	s := &Scenario{
		BotMessages: []BotMessage{
			{ExpectedKeywords: []string{"Policy", "claim"}},
			{ExpectedKeywords: []string{"policy", "  deductible  ", ""}},
		},
	}
	assert.Equal(t, []string{"policy", "claim", "deductible"}, s.ExpectedKeywords())
}

func TestLoader_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "claim.yaml", validScenario)

	loader := NewLoader(dir, logging.NopLogger{})
	require.NoError(t, loader.LoadAll(context.Background()))

	sc, ok := loader.Get("claim_basics")
	require.True(t, ok)
	assert.Equal(t, "Claim Handling Basics", sc.Title)
	assert.Len(t, sc.BotMessages, 2)
	assert.Equal(t, "mock", sc.LLM.Model)
	assert.Equal(t, []string{"claim_basics"}, loader.List())
}

func TestLoader_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "good.yaml", validScenario)
	writeScenario(t, dir, "broken.yaml", "id: [not\n  valid yaml")
	writeScenario(t, dir, "invalid.yaml", "id: X\ntitle: nope\n")
	writeScenario(t, dir, "notes.txt", "not a scenario")

	loader := NewLoader(dir, logging.NopLogger{})
	require.NoError(t, loader.LoadAll(context.Background()))

	assert.Len(t, loader.List(), 1)
	_, ok := loader.Get("claim_basics")
	assert.True(t, ok)
}

func TestLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "claim.yaml", validScenario)

	loader := NewLoader(dir, logging.NopLogger{})
	require.NoError(t, loader.LoadAll(context.Background()))

	updated := "id: claim_basics\ntitle: Updated Claim Training\nbot_messages:\n  - content: \"Hi there\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	loader.Reload(context.Background(), path)

	sc, ok := loader.Get("claim_basics")
	require.True(t, ok)
	assert.Equal(t, "Updated Claim Training", sc.Title)
}

func TestLoader_MissingDirectory(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent"), logging.NopLogger{})
	err := loader.LoadAll(context.Background())
	assert.Error(t, err)
	assert.Empty(t, loader.List())
}
