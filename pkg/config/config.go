package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"marketmate/pkg/ratelimit"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel API keys and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the configuration for the LLM provider groups in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
	// SystemPrompt overrides the built-in agent persona when set.
	SystemPrompt string `json:"system_prompt"`
	// DefaultModel is the "provider/model" used when a conversation has
	// no explicit model assigned.
	DefaultModel string `json:"default_model"`
	// StorePath is the SQLite database file path.
	StorePath string `json:"store_path"`
	// Tiers maps subscription tier names to their rate limits.
	Tiers map[string]ratelimit.Limits `json:"tiers"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the reasoning engine.
type SystemConfig struct {
	// MaxIterations caps reasoning loop passes per turn.
	MaxIterations int `json:"max_iterations"`
	// MaxRetries is the number of attempts for a reasoning model call
	// before the turn degrades to an apology response.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for an
	// LLM request. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// HistoryWindow is the number of recent messages loaded from
	// persistence into each turn's working state.
	HistoryWindow int `json:"history_window"`
	// SummaryEvery triggers a summary refresh each time the user
	// message count is a multiple of this cadence.
	SummaryEvery int `json:"summary_every"`
	// ReasoningTemperature is the sampling temperature for reasoning calls.
	ReasoningTemperature float64 `json:"reasoning_temperature"`
	// SummaryTemperature is the sampling temperature for summary calls.
	SummaryTemperature float64 `json:"summary_temperature"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles tool calling. If false, the model is
	// not offered any tools and answers from its own knowledge.
	EnableTools bool `json:"enable_tools"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxIterations:        7,
		MaxRetries:           3,
		RetryDelayMs:         1000,
		LLMTimeoutMs:         600000,
		HistoryWindow:        10,
		SummaryEvery:         10,
		ReasoningTemperature: 0.7,
		SummaryTemperature:   0.5,
		LogLevel:             "info",
		EnableTools:          true,
	}
}

// Load reads and parses the JSON configuration files from the current working directory.
// It first attempts to load 'config.json' (app config). If this file is missing, it returns an error.
// Then it calls LoadSystemConfig to load 'system.json'.
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if cfg.StorePath == "" {
		cfg.StorePath = "marketmate.db"
	}
	if cfg.Tiers == nil {
		cfg.Tiers = ratelimit.DefaultTiers()
	}

	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
