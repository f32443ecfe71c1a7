package server

import (
	"strings"

	"github.com/chattrain/chattrain/internal/scenario"
)

// ScenarioResolver maps session identifiers onto loaded scenarios.
// Session IDs are either a bare scenario ID or "<scenarioID>__<suffix>"
// so several sessions can run the same scenario.
type ScenarioResolver struct {
	loader *scenario.Loader
}

// NewScenarioResolver wraps a loader for the orchestrator's scenario
// lookup.
func NewScenarioResolver(loader *scenario.Loader) ScenarioResolver {
	return ScenarioResolver{loader: loader}
}

func (r ScenarioResolver) ScenarioForSession(sessionID string) *scenario.Scenario {
	id := sessionID
	if i := strings.Index(sessionID, "__"); i > 0 {
		id = sessionID[:i]
	}
	if sc, ok := r.loader.Get(id); ok {
		return sc
	}
	return nil
}
