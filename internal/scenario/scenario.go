// Package scenario loads training scenario definitions from YAML files
// and keeps them fresh with filesystem watching. Scenario content is a
// data-access concern; malformed files are logged and skipped, never
// fatal to the server.
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chattrain/chattrain/internal/logging"
)

// BotMessage is one scripted training turn with the keywords a good
// trainee response is expected to use.
type BotMessage struct {
	Content          string   `yaml:"content"`
	ExpectedKeywords []string `yaml:"expected_keywords"`
}

// LLMConfig carries the model settings a scenario requests.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Document references supporting material served alongside a scenario.
type Document struct {
	Filename string `yaml:"filename"`
	Title    string `yaml:"title"`
}

// Scenario is one training scenario definition.
type Scenario struct {
	ID              string       `yaml:"id"`
	Title           string       `yaml:"title"`
	Description     string       `yaml:"description"`
	DurationMinutes int          `yaml:"duration_minutes"`
	BotMessages     []BotMessage `yaml:"bot_messages"`
	LLM             LLMConfig    `yaml:"llm_config"`
	Documents       []Document   `yaml:"documents"`
}

var scenarioIDPattern = regexp.MustCompile(`^[a-z0-9_]{3,50}$`)

// Validate checks the required fields of a parsed scenario.
func (s *Scenario) Validate() error {
	if !scenarioIDPattern.MatchString(s.ID) {
		return fmt.Errorf("invalid scenario id %q: must be 3-50 lowercase letters, digits, or underscores", s.ID)
	}
	if len(s.Title) < 5 {
		return fmt.Errorf("scenario %s: title too short", s.ID)
	}
	if len(s.BotMessages) == 0 {
		return fmt.Errorf("scenario %s: at least one bot message is required", s.ID)
	}
	for i, msg := range s.BotMessages {
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("scenario %s: bot message %d has empty content", s.ID, i)
		}
	}
	return nil
}

// ExpectedKeywords flattens the lowercase expected keywords of every
// bot message, de-duplicated in order.
func (s *Scenario) ExpectedKeywords() []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, msg := range s.BotMessages {
		for _, kw := range msg.ExpectedKeywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// Loader reads scenario YAML files from a directory tree.
type Loader struct {
	dir    string
	logger logging.Logger

	mu        sync.RWMutex
	scenarios map[string]*Scenario
}

// NewLoader creates a loader for the given directory.
func NewLoader(dir string, logger logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Loader{
		dir:       dir,
		logger:    logger.WithComponent("scenario"),
		scenarios: make(map[string]*Scenario),
	}
}

// LoadAll walks the scenario directory and parses every .yaml/.yml
// file, replacing the in-memory set. Invalid files are skipped with a
// warning.
func (l *Loader) LoadAll(ctx context.Context) error {
	loaded := make(map[string]*Scenario)

	err := filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}

		sc, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn(ctx, err, "skipping invalid scenario file", "path", path)
			return nil
		}
		if _, dup := loaded[sc.ID]; dup {
			l.logger.Warn(ctx, nil, "duplicate scenario id", "id", sc.ID, "path", path)
			return nil
		}
		loaded[sc.ID] = sc
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking scenario dir %s: %w", l.dir, err)
	}

	l.mu.Lock()
	l.scenarios = loaded
	l.mu.Unlock()

	l.logger.Info(ctx, "scenarios loaded", "count", len(loaded), "dir", l.dir)
	return nil
}

func (l *Loader) loadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Reload re-parses a single file and merges the result into the set.
func (l *Loader) Reload(ctx context.Context, path string) {
	sc, err := l.loadFile(path)
	if err != nil {
		l.logger.Warn(ctx, err, "scenario reload failed", "path", path)
		return
	}

	l.mu.Lock()
	l.scenarios[sc.ID] = sc
	l.mu.Unlock()

	l.logger.Info(ctx, "scenario reloaded", "id", sc.ID, "path", path)
}

// Get returns a scenario by id.
func (l *Loader) Get(id string) (*Scenario, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sc, ok := l.scenarios[id]
	return sc, ok
}

// List returns the ids of all loaded scenarios.
func (l *Loader) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.scenarios))
	for id := range l.scenarios {
		ids = append(ids, id)
	}
	return ids
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
