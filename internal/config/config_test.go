package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 2000, cfg.Security.MaxMessageLength)
	assert.Equal(t, 1000, cfg.Security.MaxMetadataSize)
	assert.Equal(t, 1000, cfg.Security.MaxAuditEvents)
	assert.Equal(t, 20, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 5, cfg.RateLimit.BurstAllowance)
	assert.Equal(t, "./scenarios", cfg.Scenarios.Dir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.True(t, cfg.Security.MaskingEnabled)
	assert.True(t, cfg.Security.MaskingLogEnabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.Scenarios.HotReload)

	require.NoError(t, validateConfig(cfg))
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9090
	cfg.RateLimit.RequestsPerMinute = 60

	applyDefaults(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestValidateServerConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, true},
		{"host with semicolon", func(c *Config) { c.Server.Host = "localhost;rm" }, true},
		{"host with backtick", func(c *Config) { c.Server.Host = "host`cmd`" }, true},
		{"host with dollar", func(c *Config) { c.Server.Host = "$HOME" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	cfg := Default()
	cfg.Security.MaxMessageLength = 50
	assert.Error(t, validateConfig(cfg))

	cfg = Default()
	cfg.Security.MaxMetadataSize = 0
	// Zero is replaced by applyDefaults before validation in Load; a
	// hand-built zero must still be rejected.
	assert.Error(t, validateSecurityConfig(&cfg.Security))
}

func TestValidateRateLimitConfig(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.RequestsPerMinute = 0
	assert.Error(t, validateRateLimitConfig(&cfg.RateLimit))

	cfg = Default()
	cfg.RateLimit.BurstAllowance = -1
	assert.Error(t, validateConfig(cfg))
}
