// Package config loads and manages cabinwatch configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, PORT, CABINWATCH_PROVIDER, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/cabinwatch/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig holds configuration for a single upstream provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// APIKeyExpiry optionally marks when the key stops being valid
	// (RFC 3339). Empty means no known expiry.
	APIKeyExpiry string `yaml:"api_key_expiry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AllowedOrigins is the CORS allow list. ["*"] admits any origin;
	// the Android client connects from arbitrary device addresses.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// RequestTimeoutSeconds bounds a single chat request end to end.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// ShutdownTimeoutSeconds bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// SessionConfig holds conversation session settings.
type SessionConfig struct {
	// ContextBudgetTokens caps the estimated token size of the history
	// window sent to the provider per request.
	ContextBudgetTokens int `yaml:"context_budget_tokens"`

	// MaxMessageChars rejects user messages longer than this. 0 = no cap.
	MaxMessageChars int `yaml:"max_message_chars"`

	// IdleTimeoutMinutes evicts sessions with no activity. 0 disables sweeping.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`

	// SweepIntervalSeconds is how often the idle sweeper runs.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// RetryConfig bounds retries of failed provider calls.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// RateLimitConfig holds token bucket settings for chat submissions.
type RateLimitConfig struct {
	// SessionPerMinute is the refill rate of each session's bucket.
	SessionPerMinute int `yaml:"session_per_minute"`
	SessionBurst     int `yaml:"session_burst"`

	// GlobalPerMinute is the refill rate of the process-wide bucket.
	GlobalPerMinute int `yaml:"global_per_minute"`
	GlobalBurst     int `yaml:"global_burst"`
}

// MonitorConfig holds monitoring report store settings.
type MonitorConfig struct {
	// Store backend: "jsonl" (daily files, default) | "sqlite"
	Store string `yaml:"store"`

	// LogsDir is where the jsonl backend writes its daily files.
	LogsDir string `yaml:"logs_dir"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
}

// GenerationConfig holds model generation parameters.
type GenerationConfig struct {
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	// Level: "debug" | "info" | "warn" | "error"
	Level string `yaml:"level"`
	// Format: "text" | "json"
	Format string `yaml:"format"`
}

// Config is the complete configuration structure for cabinwatch.
type Config struct {
	// Provider is the active provider name (e.g. "gemini", "openai", "anthropic").
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Retry      RetryConfig      `yaml:"retry"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Generation GenerationConfig `yaml:"generation"`
	Log        LogConfig        `yaml:"log"`
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their
	// OpenAI-compatible base URLs. Anthropic is absent: its SDK carries
	// its own default endpoint.
	KnownProviderBaseURLs = map[string]string{
		"openai":   "https://api.openai.com/v1",
		"gemini":   "https://generativelanguage.googleapis.com/v1beta/openai",
		"deepseek": "https://api.deepseek.com",
	}

	// KnownProviderModels maps well-known provider names to their default models.
	KnownProviderModels = map[string]string{
		"openai":    "gpt-4o-mini",
		"gemini":    "gemini-2.0-flash",
		"deepseek":  "deepseek-chat",
		"anthropic": "claude-sonnet-4-20250514",
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "gemini",
		Providers: make(map[string]*ProviderConfig),
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8000,
			AllowedOrigins:         []string{"*"},
			RequestTimeoutSeconds:  120,
			ShutdownTimeoutSeconds: 10,
		},
		Session: SessionConfig{
			ContextBudgetTokens:  8000,
			MaxMessageChars:      8192,
			IdleTimeoutMinutes:   30,
			SweepIntervalSeconds: 60,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMs: 2000,
			MaxDelayMs:  30000,
		},
		RateLimit: RateLimitConfig{
			SessionPerMinute: 10,
			SessionBurst:     3,
			GlobalPerMinute:  120,
			GlobalBurst:      20,
		},
		Monitor: MonitorConfig{
			Store:   "jsonl",
			LogsDir: "logs",
		},
		Generation: GenerationConfig{
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Determine config file path
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".config", "cabinwatch", "config.yaml")
		}
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	// An explicit `providers: null` in the file nils the map; restore it
	// before the env overrides write into it.
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty
// config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

// ResolveModel returns the effective model for the active provider.
func (c *Config) ResolveModel() string {
	if c.Model != "" {
		return c.Model
	}
	if pc := c.GetProviderConfig(c.Provider); pc.Model != "" {
		return pc.Model
	}
	return KnownProviderModels[c.Provider]
}

// ResolveBaseURL returns the effective base URL for the active provider.
func (c *Config) ResolveBaseURL() string {
	if pc := c.GetProviderConfig(c.Provider); pc.BaseURL != "" {
		return pc.BaseURL
	}
	return KnownProviderBaseURLs[c.Provider]
}

// Addr returns the host:port the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RequestTimeout returns the per-request deadline.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// IdleTimeout returns how long a session may sit idle before eviction.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns how often idle sessions are swept.
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// BaseDelay returns the first retry backoff delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff delay cap.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Provider selection first, so generic key/URL overrides below land
	// on the provider that will actually be used.
	if v := os.Getenv("CABINWATCH_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("CABINWATCH_MODEL"); v != "" {
		cfg.Model = v
	}

	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		provider := cfg.Provider
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		provider := cfg.Provider
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	// Provider-specific keys
	for name, env := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	} {
		if v := os.Getenv(env); v != "" {
			if cfg.Providers[name] == nil {
				cfg.Providers[name] = &ProviderConfig{}
			}
			if cfg.Providers[name].APIKey == "" {
				cfg.Providers[name].APIKey = v
			}
		}
	}

	// Server overrides
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("CABINWATCH_LOGS_DIR"); v != "" {
		cfg.Monitor.LogsDir = v
	}
}
