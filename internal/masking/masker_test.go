package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/logging"
)

func newTestMasker(t *testing.T) *Masker {
	t.Helper()
	return NewMasker(config.SecurityConfig{
		MaskingEnabled:    true,
		MaskingLogEnabled: false,
	}, logging.NopLogger{})
}

func TestMask_Email(t *testing.T) {
	m := newTestMasker(t)

	masked, entries := m.Mask("reach me at john.doe@example.com today", true)
	assert.Equal(t, "reach me at {{EMAIL}} today", masked)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryEmail, entries[0].Category)
	assert.Equal(t, "email", entries[0].PatternID)
	assert.Equal(t, len("john.doe@example.com"), entries[0].OriginalLength)
	assert.NotContains(t, entries[0].Redacted, "john.doe@example.com")
}

func TestMask_AccountNumber(t *testing.T) {
	m := newTestMasker(t)

	masked, entries := m.Mask("my account is AC-123456", true)
	assert.Equal(t, "my account is {{ACCOUNT}}", masked)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryAccount, entries[0].Category)
}

func TestMask_CardNumber(t *testing.T) {
	m := newTestMasker(t)

	masked, entries := m.Mask("card 4532-1234-5678-9012 please", true)
	assert.Equal(t, "card {{CARD}} please", masked)
	require.Len(t, entries, 1)
	assert.Equal(t, CategoryCard, entries[0].Category)
}

func TestMask_Phone(t *testing.T) {
	m := newTestMasker(t)

	masked, _ := m.Mask("call me at (555) 123-4567", true)
	assert.Equal(t, "call me at {{PHONE}}", masked)
}

func TestMask_SSN(t *testing.T) {
	m := newTestMasker(t)

	masked, entries := m.Mask("ssn 123-45-6789 on file", true)
	assert.Equal(t, "ssn {{SSN}} on file", masked)
	require.Len(t, entries, 1)
	assert.Equal(t, CategorySSN, entries[0].Category)
}

func TestMask_Policy(t *testing.T) {
	m := newTestMasker(t)

	masked, _ := m.Mask("policy P-987654 renewal", true)
	assert.Equal(t, "policy {{POLICY}} renewal", masked)
}

func TestMask_MultipleCategories(t *testing.T) {
	m := newTestMasker(t)

	masked, entries := m.Mask("account AC-123456, email a.b@test.org", true)
	assert.Equal(t, "account {{ACCOUNT}}, email {{EMAIL}}", masked)
	assert.Len(t, entries, 2)
}

func TestMask_ExclusionContextSkipsMasking(t *testing.T) {
	m := newTestMasker(t)

	input := "use the test account AC-123456 for training"
	masked, entries := m.Mask(input, true)
	assert.Equal(t, input, masked)
	assert.Empty(t, entries)
}

func TestMask_ExclusionIgnoredWithoutContextFlag(t *testing.T) {
	m := newTestMasker(t)

	masked, entries := m.Mask("use the test account AC-123456 for training", false)
	assert.Contains(t, masked, "{{ACCOUNT}}")
	assert.Len(t, entries, 1)
}

func TestMask_Idempotent(t *testing.T) {
	m := newTestMasker(t)

	once, _ := m.Mask("card 4532123456789012, ssn 123-45-6789", true)
	twice, entries := m.Mask(once, true)
	assert.Equal(t, once, twice)
	assert.Empty(t, entries)
}

func TestMask_DisabledReturnsInputUnchanged(t *testing.T) {
	m := NewMasker(config.SecurityConfig{MaskingEnabled: false}, logging.NopLogger{})

	input := "email a.b@test.org and ssn 123-45-6789"
	masked, entries := m.Mask(input, true)
	assert.Equal(t, input, masked)
	assert.Empty(t, entries)
}

func TestMask_EmptyInput(t *testing.T) {
	m := newTestMasker(t)

	masked, entries := m.Mask("", true)
	assert.Equal(t, "", masked)
	assert.Empty(t, entries)
}

func TestAddPattern_NewCategory(t *testing.T) {
	m := newTestMasker(t)

	require.NoError(t, m.AddPattern("EMPLOYEE", `\bEMP-\d{5}\b`))

	masked, entries := m.Mask("badge EMP-12345 checked in", true)
	assert.Equal(t, "badge {{EMPLOYEE}} checked in", masked)
	require.Len(t, entries, 1)
	assert.Equal(t, "EMPLOYEE", entries[0].Category)
}

func TestAddPattern_ExistingCategory(t *testing.T) {
	m := newTestMasker(t)

	before := m.Stats().TotalPatterns
	require.NoError(t, m.AddPattern(CategoryAccount, `\bIBAN\d{10}\b`))

	stats := m.Stats()
	assert.Equal(t, before+1, stats.TotalPatterns)
	assert.Len(t, stats.Categories, 6)

	masked, _ := m.Mask("transfer to IBAN1234567890", true)
	assert.Equal(t, "transfer to {{ACCOUNT}}", masked)
}

func TestAddPattern_MalformedRejected(t *testing.T) {
	m := newTestMasker(t)

	before := m.Stats().TotalPatterns
	err := m.AddPattern("BROKEN", `[unclosed`)
	require.Error(t, err)
	assert.Equal(t, before, m.Stats().TotalPatterns)
}

func TestRedactedFormNeverContainsFullValue(t *testing.T) {
	m := newTestMasker(t)

	_, entries := m.Mask("card 4532123456789012", true)
	require.Len(t, entries, 1)
	assert.Equal(t, "45************12", entries[0].Redacted)
}
