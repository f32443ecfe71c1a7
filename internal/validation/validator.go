// Package validation sanitizes and classifies untrusted inbound text.
// Malicious spans are neutralized in place and recorded, not treated as
// fatal: a message carrying one blocked pattern proceeds sanitized
// unless it also violates a hard constraint such as length.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/errors"
	"github.com/chattrain/chattrain/internal/logging"
)

// Pattern categories for blocked content.
const (
	CategoryXSS              = "XSS"
	CategorySQLInjection     = "SQL_INJECTION"
	CategoryCommandInjection = "COMMAND_INJECTION"
	CategoryPathTraversal    = "PATH_TRAVERSAL"
	CategorySuspicious       = "SUSPICIOUS"
)

const blockedMarker = "[BLOCKED]"

// maliciousPattern pairs a compiled pattern with its attack category.
type maliciousPattern struct {
	id       string
	category string
	re       *regexp.Regexp
}

// The table is ordered and built once; matches are replaced with the
// blocked-content marker rather than rejecting the whole message.
var maliciousPatterns = []maliciousPattern{
	{"script_tag", CategoryXSS, regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)},
	{"script_open", CategoryXSS, regexp.MustCompile(`(?i)<script\b[^>]*`)},
	{"javascript_uri", CategoryXSS, regexp.MustCompile(`(?i)javascript:`)},
	{"event_handler", CategoryXSS, regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{"iframe_tag", CategoryXSS, regexp.MustCompile(`(?i)<iframe[^>]*>`)},
	{"object_tag", CategoryXSS, regexp.MustCompile(`(?i)<object[^>]*>`)},
	{"embed_tag", CategoryXSS, regexp.MustCompile(`(?i)<embed[^>]*>`)},
	{"link_tag", CategoryXSS, regexp.MustCompile(`(?i)<link[^>]*>`)},
	{"meta_tag", CategoryXSS, regexp.MustCompile(`(?i)<meta[^>]*>`)},
	{"sql_keyword", CategorySQLInjection, regexp.MustCompile(`(?i)(?:union|select|insert|update|delete|drop|create|alter)\s+`)},
	{"sql_tautology", CategorySQLInjection, regexp.MustCompile(`(?i)(?:or|and)\s+\d+\s*=\s*\d+`)},
	{"sql_quote_logic", CategorySQLInjection, regexp.MustCompile(`(?i)'\s*(?:or|and)\s*'`)},
	{"sql_comment", CategorySQLInjection, regexp.MustCompile(`(?m)--\s*$`)},
	{"sql_block_comment", CategorySQLInjection, regexp.MustCompile(`(?s)/\*.*?\*/`)},
	{"shell_chain", CategoryCommandInjection, regexp.MustCompile(`(?i)(?:;|&&|\|\|)\s*(?:rm|cat|ls|pwd|whoami|id)\b`)},
	{"command_substitution", CategoryCommandInjection, regexp.MustCompile("(?:\\$\\(|`)")},
	{"dot_dot_path", CategoryPathTraversal, regexp.MustCompile(`\.\.[\\/]`)},
	{"system_path", CategoryPathTraversal, regexp.MustCompile(`(?i)(?:etc/passwd|windows/system32)`)},
}

// Prompt-injection phrasings checked by IsSafeForModel. These advise;
// they never mutate content.
var injectionPatterns = []maliciousPattern{
	{"instruction_override", CategorySuspicious, regexp.MustCompile(`(?i)ignore\s+(?:previous|all)\s+instructions`)},
	{"role_reassignment", CategorySuspicious, regexp.MustCompile(`(?i)you\s+are\s+now\s+a\s+different`)},
	{"roleplay_request", CategorySuspicious, regexp.MustCompile(`(?i)roleplay\s+as\s+`)},
	{"pretend_request", CategorySuspicious, regexp.MustCompile(`(?i)pretend\s+(?:you\s+are|to\s+be)`)},
	{"system_role_spoof", CategorySuspicious, regexp.MustCompile(`(?i)system\s*:\s*`)},
	{"assistant_role_spoof", CategorySuspicious, regexp.MustCompile(`(?i)(?:assistant|ai)\s*:\s*`)},
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	controlChars  = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
)

// Suspicious metadata key fragments flagged as warnings.
var suspiciousMetadataKeys = []string{"__", "eval", "exec", "import"}

// Allowed message envelope types. Unknown types warn, never reject.
var allowedMessageTypes = map[string]struct{}{
	"session_start":       {},
	"user_message":        {},
	"assistant_message":   {},
	"evaluation_feedback": {},
}

// modelContextBudget is the conservative character budget for content
// forwarded to the language model.
const modelContextBudget = 1500

// BlockedPattern records one neutralized malicious pattern.
type BlockedPattern struct {
	PatternID string `json:"pattern_id"`
	Category  string `json:"category"`
	Matches   int    `json:"matches"`
}

// Report summarizes the validation of a single message. Reports are
// never reused across messages.
type Report struct {
	OriginalLength  int              `json:"original_length"`
	SanitizedLength int              `json:"sanitized_length"`
	Warnings        []string         `json:"warnings"`
	BlockedPatterns []BlockedPattern `json:"blocked_patterns"`
}

// Validator sanitizes inbound text against a fixed pattern table.
type Validator struct {
	maxMessageLength int
	maxMetadataSize  int
	logger           logging.Logger
}

// NewValidator creates a validator from security configuration.
func NewValidator(cfg config.SecurityConfig, logger logging.Logger) *Validator {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Validator{
		maxMessageLength: cfg.MaxMessageLength,
		maxMetadataSize:  cfg.MaxMetadataSize,
		logger:           logger.WithComponent("validation"),
	}
}

// Validate sanitizes content and reports what was neutralized. It
// fails only on hard constraints: empty content, over-length content,
// or over-sized metadata.
func (v *Validator) Validate(content string, metadata map[string]interface{}) (string, Report, error) {
	report := Report{OriginalLength: len(content)}

	if content == "" {
		return "", report, errors.NewValidationError("content cannot be empty")
	}
	if len(content) > v.maxMessageLength {
		return "", report, errors.NewValidationError(fmt.Sprintf(
			"message too long: %d chars (max: %d)", len(content), v.maxMessageLength))
	}

	sanitized := v.blockMaliciousPatterns(content, &report)
	sanitized = normalizeWhitespace(sanitized)
	sanitized = html.EscapeString(sanitized)

	if metadata != nil {
		if err := v.validateMetadata(metadata, &report); err != nil {
			return "", report, err
		}
	}

	report.SanitizedLength = len(sanitized)

	if len(report.Warnings) > 0 || len(report.BlockedPatterns) > 0 {
		v.logger.Warn(context.Background(), nil, "input validation issues",
			"blocked_patterns", len(report.BlockedPatterns),
			"warnings", len(report.Warnings))
	}

	return sanitized, report, nil
}

// blockMaliciousPatterns replaces every match of the malicious table
// with the blocked-content marker, recording counts per pattern.
func (v *Validator) blockMaliciousPatterns(content string, report *Report) string {
	sanitized := content
	for _, p := range maliciousPatterns {
		matches := p.re.FindAllStringIndex(sanitized, -1)
		if len(matches) == 0 {
			continue
		}
		sanitized = p.re.ReplaceAllString(sanitized, blockedMarker)
		report.BlockedPatterns = append(report.BlockedPatterns, BlockedPattern{
			PatternID: p.id,
			Category:  p.category,
			Matches:   len(matches),
		})
	}
	return sanitized
}

func normalizeWhitespace(content string) string {
	content = controlChars.ReplaceAllString(content, "")
	content = whitespaceRun.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}

// validateMetadata enforces the serialized size cap and flags
// suspicious key names as warnings.
func (v *Validator) validateMetadata(metadata map[string]interface{}, report *Report) error {
	serialized, err := json.Marshal(metadata)
	if err != nil {
		return errors.NewValidationError("metadata is not serializable")
	}
	if len(serialized) > v.maxMetadataSize {
		return errors.NewValidationError(fmt.Sprintf(
			"metadata too large: %d bytes (max: %d)", len(serialized), v.maxMetadataSize))
	}

	for key := range metadata {
		lower := strings.ToLower(key)
		for _, fragment := range suspiciousMetadataKeys {
			if strings.Contains(lower, fragment) {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("suspicious metadata key: %s", key))
				break
			}
		}
	}

	return nil
}

// IsSafeForModel independently advises whether content can be forwarded
// to the language model. It never mutates the text.
func (v *Validator) IsSafeForModel(content string) (bool, []string) {
	var warnings []string

	if len(content) > modelContextBudget {
		warnings = append(warnings, "content may exceed model context limits")
	}

	for _, p := range injectionPatterns {
		if p.re.MatchString(content) {
			warnings = append(warnings, "potential prompt injection: "+p.id)
		}
	}

	return len(warnings) == 0, warnings
}

// EnvelopeFields are the structured session-scoped fields of a message.
type EnvelopeFields struct {
	SessionID string
	UserID    string
	Type      string
}

// ValidateEnvelope checks session-scoped fields against the allow-list
// of known message types. Unknown types produce warnings, not errors;
// missing identifiers are hard failures.
func (v *Validator) ValidateEnvelope(fields EnvelopeFields) ([]string, error) {
	var warnings []string

	if fields.SessionID == "" {
		return nil, errors.NewValidationError("session id is required")
	}
	if fields.UserID == "" {
		return nil, errors.NewValidationError("user id is required")
	}
	if _, ok := allowedMessageTypes[fields.Type]; !ok {
		warnings = append(warnings, fmt.Sprintf("unknown message type: %s", fields.Type))
	}

	return warnings, nil
}

// MaxMessageLength exposes the configured hard cap for stats reporting.
func (v *Validator) MaxMessageLength() int { return v.maxMessageLength }

// PatternCount reports the size of the malicious pattern table.
func (v *Validator) PatternCount() int { return len(maliciousPatterns) }
