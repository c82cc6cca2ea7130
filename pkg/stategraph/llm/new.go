package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph/config"
)

// ErrMissingAPIKey is returned by New when the openai provider has no key.
var ErrMissingAPIKey = errors.New("llm.api_key is required for the openai provider")

// New builds a Completer from configuration.
func New(cfg config.LLMConfig, logger *slog.Logger) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		var c Completer = NewOpenAIFromKey(cfg.APIKey, cfg.BaseURL,
			WithModel(cfg.Model),
			WithSystemPrompt(cfg.SystemPrompt),
			WithTemperature(cfg.Temperature),
			WithMaxTokens(cfg.MaxTokens),
			WithTimeout(cfg.Timeout),
			WithLogger(logger),
		)
		if cfg.MaxRetries > 0 {
			retry := DefaultRetry
			retry.MaxAttempts = cfg.MaxRetries + 1
			c = WithRetry(c, retry, logger)
		}
		return c, nil
	case "echo":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
