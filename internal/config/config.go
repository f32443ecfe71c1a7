// Package config provides configuration management for ChatTrain using
// Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Configuration is read from .chattrain.yml (or the file named by
// --config / CHATTRAIN_CONFIG_FILE) with CHATTRAIN_ prefixed
// environment variable overrides following the CHATTRAIN_<SECTION>_<OPTION>
// pattern, e.g. CHATTRAIN_SECURITY_MAX_MESSAGE_LENGTH=4000.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Scenarios ScenariosConfig `yaml:"scenarios"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SecurityConfig holds validation, masking, and audit settings.
type SecurityConfig struct {
	MaskingEnabled    bool `yaml:"masking_enabled"`
	MaskingLogEnabled bool `yaml:"masking_log_enabled"`
	MaxMessageLength  int  `yaml:"max_message_length"`
	MaxMetadataSize   int  `yaml:"max_metadata_size"`
	MaxAuditEvents    int  `yaml:"max_audit_events"`
}

// RateLimitConfig holds the steady-state limit and burst allowance that
// parameterize the per-endpoint limit table.
type RateLimitConfig struct {
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	BurstAllowance    int  `yaml:"burst_allowance"`
	Enabled           bool `yaml:"enabled"`
}

type ScenariosConfig struct {
	Dir       string `yaml:"dir"`
	HotReload bool   `yaml:"hot_reload"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	// Bool defaults need IsSet checks: an unset key and an explicit
	// false are different answers for security toggles.
	if !viper.IsSet("security.masking_enabled") {
		config.Security.MaskingEnabled = true
	}
	if !viper.IsSet("security.masking_log_enabled") {
		config.Security.MaskingLogEnabled = true
	}
	if !viper.IsSet("rate_limit.enabled") {
		config.RateLimit.Enabled = true
	}
	if !viper.IsSet("scenarios.hot_reload") {
		config.Scenarios.HotReload = true
	}

	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Security.MaxMessageLength == 0 {
		config.Security.MaxMessageLength = 2000
	}
	if config.Security.MaxMetadataSize == 0 {
		config.Security.MaxMetadataSize = 1000
	}
	if config.Security.MaxAuditEvents == 0 {
		config.Security.MaxAuditEvents = 1000
	}
	if config.RateLimit.RequestsPerMinute == 0 {
		config.RateLimit.RequestsPerMinute = 20
	}
	if config.RateLimit.BurstAllowance == 0 {
		config.RateLimit.BurstAllowance = 5
	}
	if config.Scenarios.Dir == "" {
		config.Scenarios.Dir = "./scenarios"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "text"
	}
}

// validateConfig validates configuration values for security and correctness.
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateSecurityConfig(&config.Security); err != nil {
		return fmt.Errorf("security config: %w", err)
	}
	if err := validateRateLimitConfig(&config.RateLimit); err != nil {
		return fmt.Errorf("rate_limit config: %w", err)
	}
	return nil
}

func validateServerConfig(config *ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validateSecurityConfig(config *SecurityConfig) error {
	if config.MaxMessageLength < 100 {
		return fmt.Errorf("max_message_length %d is too low (minimum 100)", config.MaxMessageLength)
	}
	if config.MaxMetadataSize < 1 {
		return fmt.Errorf("max_metadata_size must be positive, got %d", config.MaxMetadataSize)
	}
	if config.MaxAuditEvents < 1 {
		return fmt.Errorf("max_audit_events must be positive, got %d", config.MaxAuditEvents)
	}
	return nil
}

func validateRateLimitConfig(config *RateLimitConfig) error {
	if config.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be positive, got %d", config.RequestsPerMinute)
	}
	if config.BurstAllowance < 0 {
		return fmt.Errorf("burst_allowance must be non-negative, got %d", config.BurstAllowance)
	}
	return nil
}

// Default returns a Config with all defaults applied, bypassing viper.
// Used by tests and by components that need a baseline configuration.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	config.Security.MaskingEnabled = true
	config.Security.MaskingLogEnabled = true
	config.RateLimit.Enabled = true
	config.Scenarios.HotReload = true
	return config
}
