// Package masking redacts sensitive identifiers from text before it is
// persisted or forwarded. Detected spans are replaced by {{CATEGORY}}
// tokens; the tokens contain no digits or address characters, so
// masking already-masked text is a no-op.
package masking

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/logging"
)

// Sensitive-data categories, applied in declaration order.
const (
	CategoryAccount = "ACCOUNT"
	CategoryCard    = "CARD"
	CategoryPhone   = "PHONE"
	CategoryEmail   = "EMAIL"
	CategorySSN     = "SSN"
	CategoryPolicy  = "POLICY"
)

type pattern struct {
	id string
	re *regexp.Regexp
}

type categoryPatterns struct {
	name     string
	patterns []pattern
}

// LogEntry records one masked span for audit. The raw value is never
// stored; only a partially redacted form and its length.
type LogEntry struct {
	Category       string    `json:"category"`
	PatternID      string    `json:"pattern_id"`
	OriginalLength int       `json:"original_length"`
	Redacted       string    `json:"redacted"`
	Timestamp      time.Time `json:"timestamp"`
}

// Masker applies category-ordered regex redaction with context-aware
// exclusions.
type Masker struct {
	mu         sync.RWMutex
	categories []categoryPatterns
	exclusions []*regexp.Regexp

	enabled    bool
	logEnabled bool
	logger     logging.Logger
}

func defaultCategories() []categoryPatterns {
	return []categoryPatterns{
		{CategoryAccount, []pattern{
			{"account_ac", regexp.MustCompile(`(?i)\bAC-\d{6}\b`)},
			{"account_acct", regexp.MustCompile(`(?i)\bACCT-\d{6,10}\b`)},
			{"account_labeled", regexp.MustCompile(`(?i)\bAccount\s*(?:number|#)?\s*:?\s*\d{6,12}\b`)},
		}},
		{CategoryCard, []pattern{
			{"card_grouped", regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
			{"card_run", regexp.MustCompile(`\b\d{15,16}\b`)},
		}},
		{CategoryPhone, []pattern{
			{"phone_dashed", regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
			{"phone_paren", regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]?\d{4}\b`)},
			{"phone_longdistance", regexp.MustCompile(`\b1[-.\s]?\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
		}},
		{CategoryEmail, []pattern{
			{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		}},
		{CategorySSN, []pattern{
			{"ssn", regexp.MustCompile(`\b\d{3}[-.\s]?\d{2}[-.\s]?\d{4}\b`)},
			{"ssn_labeled", regexp.MustCompile(`(?i)\bSSN\s*:?\s*\d{3}[-.\s]?\d{2}[-.\s]?\d{4}\b`)},
		}},
		{CategoryPolicy, []pattern{
			{"policy_p", regexp.MustCompile(`(?i)\bP-\d{6}\b`)},
			{"policy_labeled", regexp.MustCompile(`(?i)\bPolicy\s*(?:number|#)?\s*:?\s*[A-Z]{1,3}-?\d{6,10}\b`)},
		}},
	}
}

// Exclusion contexts suppress masking entirely so documentation and
// training examples are not mangled.
func defaultExclusions() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)test\s+account`),
		regexp.MustCompile(`(?i)example\s+email`),
		regexp.MustCompile(`(?i)sample\s+phone`),
		regexp.MustCompile(`(?i)demo\s+card`),
	}
}

// NewMasker creates a masker from security configuration.
func NewMasker(cfg config.SecurityConfig, logger logging.Logger) *Masker {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	m := &Masker{
		categories: defaultCategories(),
		exclusions: defaultExclusions(),
		enabled:    cfg.MaskingEnabled,
		logEnabled: cfg.MaskingLogEnabled,
		logger:     logger.WithComponent("masking"),
	}

	m.logger.Info(context.Background(), "data masker initialized",
		"enabled", m.enabled,
		"categories", len(m.categories))

	return m
}

// Mask replaces every sensitive span with its category token and
// returns one log entry per match. It never fails: disabled masking or
// an exclusion-context hit returns the input unchanged with an empty
// log.
func (m *Masker) Mask(text string, preserveContext bool) (string, []LogEntry) {
	if !m.enabled || text == "" {
		return text, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if preserveContext && m.isExcludedContext(text) {
		m.logger.Debug(context.Background(), "masking skipped", "reason", "exclusion_context")
		return text, nil
	}

	masked := text
	var entries []LogEntry
	now := time.Now()

	for _, cat := range m.categories {
		for _, p := range cat.patterns {
			matches := p.re.FindAllString(masked, -1)
			if len(matches) == 0 {
				continue
			}
			masked = p.re.ReplaceAllString(masked, "{{"+cat.name+"}}")
			for _, match := range matches {
				entries = append(entries, LogEntry{
					Category:       cat.name,
					PatternID:      p.id,
					OriginalLength: len(match),
					Redacted:       logging.Redact(match),
					Timestamp:      now,
				})
				if m.logEnabled {
					m.logger.Info(context.Background(), "masked sensitive value",
						"category", cat.name,
						"pattern_id", p.id,
						"value", logging.Redact(match))
				}
			}
		}
	}

	return masked, entries
}

func (m *Masker) isExcludedContext(text string) bool {
	for _, re := range m.exclusions {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// AddPattern registers a custom pattern for a new or existing category.
// The expression is compiled before any table is touched; a malformed
// pattern is rejected without side effects.
func (m *Masker) AddPattern(category, expr string) error {
	re, err := regexp.Compile(`(?i)` + expr)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := "custom_" + category
	for i := range m.categories {
		if m.categories[i].name == category {
			m.categories[i].patterns = append(m.categories[i].patterns, pattern{id, re})
			m.logger.Info(context.Background(), "added custom masking pattern", "category", category)
			return nil
		}
	}

	m.categories = append(m.categories, categoryPatterns{
		name:     category,
		patterns: []pattern{{id, re}},
	})
	m.logger.Info(context.Background(), "added custom masking category", "category", category)
	return nil
}

// Stats describes the active pattern tables.
type Stats struct {
	Enabled           bool     `json:"enabled"`
	TotalPatterns     int      `json:"total_patterns"`
	Categories        []string `json:"categories"`
	ExclusionPatterns int      `json:"exclusion_patterns"`
}

// Stats returns a snapshot of the masker's configuration.
func (m *Masker) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Enabled:           m.enabled,
		ExclusionPatterns: len(m.exclusions),
	}
	for _, cat := range m.categories {
		s.Categories = append(s.Categories, cat.name)
		s.TotalPatterns += len(cat.patterns)
	}
	return s
}
