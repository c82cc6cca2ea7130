package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of stategraph settings.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" json:"engine"`
	Log     LogConfig     `mapstructure:"log" json:"log"`
	LLM     LLMConfig     `mapstructure:"llm" json:"llm"`
	Journal JournalConfig `mapstructure:"journal" json:"journal"`
	Server  ServerConfig  `mapstructure:"server" json:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`
	Refine  RefineConfig  `mapstructure:"refine" json:"refine"`
}

// EngineConfig controls graph execution.
type EngineConfig struct {
	MaxIterations int `mapstructure:"max_iterations" json:"max_iterations"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// LLMConfig selects and tunes the completion backend.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider" json:"provider"`
	Model        string        `mapstructure:"model" json:"model"`
	APIKey       string        `mapstructure:"api_key" json:"-"`
	BaseURL      string        `mapstructure:"base_url" json:"base_url,omitempty"`
	SystemPrompt string        `mapstructure:"system_prompt" json:"system_prompt,omitempty"`
	Temperature  float32       `mapstructure:"temperature" json:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens" json:"max_tokens,omitempty"`
	Timeout      time.Duration `mapstructure:"timeout" json:"timeout"`

	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`
}

// JournalConfig selects the run journal store.
type JournalConfig struct {
	Driver string `mapstructure:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" json:"dsn,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Provider string `mapstructure:"provider" json:"provider"`
}

// RefineConfig tunes the plan/draft/validate workflow.
type RefineConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Engine: EngineConfig{MaxIterations: 25},
		Log:    LogConfig{Level: "info", Format: "text"},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Journal: JournalConfig{Driver: "memory"},
		Server:  ServerConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Enabled: true, Provider: "prometheus"},
		Refine:  RefineConfig{MaxAttempts: 3},
	}
}

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey        = "OPENAI_API_KEY"
	EnvBaseURL       = "OPENAI_BASE_URL"
	EnvModel         = "STATEGRAPH_MODEL"
	EnvProvider      = "STATEGRAPH_LLM_PROVIDER"
	EnvLogLevel      = "STATEGRAPH_LOG_LEVEL"
	EnvMaxIterations = "STATEGRAPH_MAX_ITERATIONS"
	EnvJournalDriver = "STATEGRAPH_JOURNAL_DRIVER"
	EnvJournalDSN    = "STATEGRAPH_JOURNAL_DSN"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from environment variables.
// Empty values are ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvAPIKey, &c.LLM.APIKey)
	str(EnvBaseURL, &c.LLM.BaseURL)
	str(EnvModel, &c.LLM.Model)
	str(EnvProvider, &c.LLM.Provider)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvJournalDriver, &c.Journal.Driver)
	str(EnvJournalDSN, &c.Journal.DSN)

	if v, ok := lookup(EnvMaxIterations); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxIterations, err)
		}
		c.Engine.MaxIterations = n
	}
	return nil
}

// Validation errors.
var (
	ErrInvalidMaxIterations = errors.New("engine.max_iterations must be positive")
	ErrInvalidMaxAttempts   = errors.New("refine.max_attempts must be positive")
	ErrInvalidMaxRetries    = errors.New("llm.max_retries must not be negative")
	ErrUnknownValue         = errors.New("unknown value")
)

// Validate checks enumerated fields and positive limits.
// All problems are reported together.
func (c Config) Validate() error {
	var errs []error

	if c.Engine.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidMaxIterations, c.Engine.MaxIterations))
	}
	if c.Refine.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidMaxAttempts, c.Refine.MaxAttempts))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidMaxRetries, c.LLM.MaxRetries))
	}
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%w: %s=%q (want one of %s)", ErrUnknownValue, field, value, strings.Join(allowed, ", ")))
	}
	check("log.level", c.Log.Level, "debug", "info", "warn", "warning", "error")
	check("log.format", c.Log.Format, "text", "json")
	check("llm.provider", c.LLM.Provider, "openai", "echo")
	check("journal.driver", c.Journal.Driver, "memory", "sqlite", "redis")
	check("metrics.provider", c.Metrics.Provider, "prometheus", "otel")

	if c.LLM.Timeout < 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must not be negative: %s", c.LLM.Timeout))
	}
	return errors.Join(errs...)
}
