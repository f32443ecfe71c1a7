package logging

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"DEBUG", LevelDebug},
		{"nonsense", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "input %q", tt.input)
	}
}

func newBufferLogger(level LogLevel) (*ChatLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{
		Level:  level,
		Format: "json",
		Output: &buf,
	})
	return logger, &buf
}

func TestLogger_JSONOutput(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)

	logger.Info(context.Background(), "test message", "user_id", "pilot1")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "test message", record["msg"])
	assert.Equal(t, "pilot1", record["user_id"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn)

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "also hidden")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), nil, "visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogger_ErrorFieldAttached(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)

	logger.Error(context.Background(), stderrors.New("kaboom"), "operation failed")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kaboom", record["error"])
}

func TestLogger_WithComponent(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)

	logger.WithComponent("ratelimit").Info(context.Background(), "ready")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ratelimit", record["component"])
}

func TestLogger_WithFieldsPersist(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo)

	child := logger.With("session_id", "s-1")
	child.Info(context.Background(), "first")
	child.Info(context.Background(), "second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var record map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		assert.Equal(t, "s-1", record["session_id"])
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcd", "****"},
		{"secret12", "se****12"},
		{"4532123456789012", "45************12"},
		{"a-very-long-sensitive-value-indeed", "a-**********ed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.input), "input %q", tt.input)
	}
}

func TestRedactNeverEchoesMiddle(t *testing.T) {
	value := "john.doe@example.com"
	redacted := Redact(value)
	assert.NotContains(t, redacted, "doe@example")
	assert.True(t, strings.HasPrefix(redacted, "jo"))
	assert.True(t, strings.HasSuffix(redacted, "om"))
}
