// Package chat defines the collaborator interfaces the security
// pipeline dispatches into once a message is allowed: message
// persistence, model generation, and keyword extraction for feedback.
// The pipeline depends only on these interfaces; the in-memory and mock
// implementations here serve the pilot deployment and tests.
package chat

import (
	"context"
	"time"

	"github.com/chattrain/chattrain/internal/scenario"
)

// Message is a persisted chat message.
type Message struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// MessageStore persists processed messages. Only masked content ever
// reaches a store.
type MessageStore interface {
	Save(ctx context.Context, sessionID, role, content string, metadata map[string]interface{}) (string, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// ModelResponse is the result of a model generation call.
type ModelResponse struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ModelClient generates assistant replies from masked content and
// recent conversation context.
type ModelClient interface {
	Generate(ctx context.Context, maskedContent string, recent []Message, sc *scenario.Scenario) (ModelResponse, error)
}

// KeywordExtractor parameterizes feedback scoring. It has no security
// role.
type KeywordExtractor interface {
	ExpectedKeywords(sc *scenario.Scenario) []string
}
