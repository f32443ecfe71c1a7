package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chattrain/chattrain/internal/scenario"
)

// MockModelClient generates canned scenario-aware replies plus a
// keyword-match evaluation, standing in for a remote model service.
type MockModelClient struct {
	extractor KeywordExtractor
}

// NewMockModelClient creates a mock model client.
func NewMockModelClient(extractor KeywordExtractor) *MockModelClient {
	if extractor == nil {
		extractor = ScenarioKeywords{}
	}
	return &MockModelClient{extractor: extractor}
}

// Generate produces a deterministic training reply. The evaluation in
// the metadata uses the same keyword heuristic the real service
// parameterizes feedback with.
func (m *MockModelClient) Generate(ctx context.Context, maskedContent string, recent []Message, sc *scenario.Scenario) (ModelResponse, error) {
	select {
	case <-ctx.Done():
		return ModelResponse{}, ctx.Err()
	default:
	}

	reply := "Thank you for your message. How else can I help you today?"
	if sc != nil && len(sc.BotMessages) > 0 {
		// Walk the scripted turns by how many assistant replies exist.
		turn := 0
		for _, msg := range recent {
			if msg.Role == "assistant" {
				turn++
			}
		}
		if turn >= len(sc.BotMessages) {
			turn = len(sc.BotMessages) - 1
		}
		reply = sc.BotMessages[turn].Content
	}

	expected := m.extractor.ExpectedKeywords(sc)
	score, matched := scoreKeywords(maskedContent, expected)

	return ModelResponse{
		Content: reply,
		Metadata: map[string]interface{}{
			"model":     "mock",
			"mock_mode": true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"evaluation": map[string]interface{}{
				"score":            score,
				"matched_keywords": matched,
				"feedback":         feedbackFor(score),
			},
		},
	}, nil
}

// scoreKeywords implements the keyword-match heuristic: a base score of
// 70 plus up to 30 points for expected keyword coverage.
func scoreKeywords(content string, expected []string) (int, []string) {
	if len(expected) == 0 {
		return 70, nil
	}

	normalized := strings.ToLower(content)
	var matched []string
	for _, kw := range expected {
		if strings.Contains(normalized, kw) {
			matched = append(matched, kw)
		}
	}

	score := 70 + int(float64(len(matched))/float64(len(expected))*30.0)
	if score > 100 {
		score = 100
	}
	return score, matched
}

func feedbackFor(score int) string {
	switch {
	case score >= 90:
		return "Excellent response covering the expected points."
	case score >= 80:
		return "Good response. Consider addressing the remaining expected points."
	default:
		return fmt.Sprintf("Score %d: review the scenario guidance and try to cover more of the expected points.", score)
	}
}

// ScenarioKeywords extracts expected keywords directly from the
// scenario definition.
type ScenarioKeywords struct{}

// ExpectedKeywords implements KeywordExtractor.
func (ScenarioKeywords) ExpectedKeywords(sc *scenario.Scenario) []string {
	if sc == nil {
		return nil
	}
	return sc.ExpectedKeywords()
}
