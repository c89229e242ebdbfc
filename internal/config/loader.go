package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration loaded from config.yaml plus
// environment overrides for anything secret or deployment-specific.
type Config struct {
	LLM     LLMConfig    `yaml:"llm"`
	Redis   RedisConfig  `yaml:"redis"`
	Memory  MemoryConfig `yaml:"memory"`
	Log     LogConfig    `yaml:"log"`
	Catalog Catalog      `yaml:"catalog"`
}

// LLMConfig selects and tunes the chat-model backend.
type LLMConfig struct {
	Backend     string  `yaml:"backend"` // "ollama" or "openai"
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"-"` // env only, never in the file
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  uint64  `yaml:"max_retries"`
	TimeoutSecs int     `yaml:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RedisConfig tunes the durable transcript/profile store. The URL itself
// comes from REDIS_URL, same as the rest of the deployment secrets.
type RedisConfig struct {
	TTLSeconds   int `yaml:"ttl_seconds"`
	HistoryLimit int `yaml:"history_limit"`
}

func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// MemoryConfig carries the bounds and heuristics of the memory engine.
type MemoryConfig struct {
	MaxMessages        int `yaml:"max_messages"`
	MaxIntents         int `yaml:"max_intents"`
	MaxTopics          int `yaml:"max_topics"`
	ExpirationHours    int `yaml:"expiration_hours"`
	SweepIntervalHours int `yaml:"sweep_interval_hours"`

	// Entity confidence tuning. The persistence threshold decides when a
	// conflicting value decays the stored one instead of replacing it.
	EntityPersistenceThreshold int     `yaml:"entity_persistence_threshold"`
	EntityRepeatIncrement      float64 `yaml:"entity_repeat_increment"`
	EntityReplaceConfidence    float64 `yaml:"entity_replace_confidence"`
	EntityDecayStep            float64 `yaml:"entity_decay_step"`
	EntityDecayFloor           float64 `yaml:"entity_decay_floor"`
	EntityPruneMinConfidence   float64 `yaml:"entity_prune_min_confidence"`
	EntityPruneMaxAgeDays      int     `yaml:"entity_prune_max_age_days"`
}

func (c MemoryConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

func (c MemoryConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalHours) * time.Hour
}

// LogConfig configures the global zerolog logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "console" or "json"
	Output     string `yaml:"output"` // "stdout", "stderr" or "file"
	FilePath   string `yaml:"file_path"`
	TimeFormat string `yaml:"time_format"`
}

// envOverrides are the deployment knobs read from the environment
// (and .env in development).
type envOverrides struct {
	LLMAPIKey  string `envconfig:"LLM_API_KEY"`
	LLMBaseURL string `envconfig:"LLM_BASE_URL"`
	LLMModel   string `envconfig:"LLM_MODEL"`
	LLMBackend string `envconfig:"LLM_BACKEND"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
}

// Load reads config.yaml, fills defaults, and applies env overrides.
func Load(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	if env.LLMAPIKey != "" {
		config.LLM.APIKey = env.LLMAPIKey
	}
	if env.LLMBaseURL != "" {
		config.LLM.BaseURL = env.LLMBaseURL
	}
	if env.LLMModel != "" {
		config.LLM.Model = env.LLMModel
	}
	if env.LLMBackend != "" {
		config.LLM.Backend = env.LLMBackend
	}
	if env.LogLevel != "" {
		config.Log.Level = env.LogLevel
	}

	return config, nil
}

// Default returns the built-in configuration, matching the deployed demo.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Backend:     "ollama",
			Model:       "llama3.1",
			BaseURL:     "http://localhost:11434",
			MaxTokens:   1024,
			Temperature: 0.2,
			MaxRetries:  2,
			TimeoutSecs: 60,
		},
		Redis: RedisConfig{
			TTLSeconds:   7 * 24 * 3600,
			HistoryLimit: 20,
		},
		Memory: MemoryConfig{
			MaxMessages:                20,
			MaxIntents:                 10,
			MaxTopics:                  10,
			ExpirationHours:            24,
			SweepIntervalHours:         2,
			EntityPersistenceThreshold: 2,
			EntityRepeatIncrement:      0.2,
			EntityReplaceConfidence:    0.8,
			EntityDecayStep:            0.1,
			EntityDecayFloor:           0.3,
			EntityPruneMinConfidence:   0.4,
			EntityPruneMaxAgeDays:      7,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			TimeFormat: "rfc3339",
		},
		Catalog: DefaultCatalog(),
	}
}
