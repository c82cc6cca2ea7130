package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of *openai.Client used by OpenAI.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI implements Completer over the chat completion API.
type OpenAI struct {
	client       ChatClient
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
	timeout      time.Duration
	logger       *slog.Logger
}

// OpenAIOption configures OpenAI.
type OpenAIOption func(*OpenAI)

// NewOpenAI creates a completer that sends prompts through client.
func NewOpenAI(client ChatClient, opts ...OpenAIOption) *OpenAI {
	c := &OpenAI{
		client:  client,
		model:   openai.GPT4oMini,
		timeout: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOpenAIFromKey builds the go-openai client from an API key and an
// optional base URL, then wraps it.
func NewOpenAIFromKey(apiKey, baseURL string, opts ...OpenAIOption) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAI(openai.NewClientWithConfig(cfg), opts...)
}

// WithModel sets the model name.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAI) {
		if model != "" {
			c.model = model
		}
	}
}

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(prompt string) OpenAIOption {
	return func(c *OpenAI) { c.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) OpenAIOption {
	return func(c *OpenAI) { c.temperature = t }
}

// WithMaxTokens caps the completion length. Zero leaves it to the server.
func WithMaxTokens(n int) OpenAIOption {
	return func(c *OpenAI) { c.maxTokens = n }
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAI) { c.timeout = d }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) OpenAIOption {
	return func(c *OpenAI) { c.logger = logger }
}

// Model returns the configured model name.
func (c *OpenAI) Model() string {
	return c.model
}

// Complete implements Completer.
func (c *OpenAI) Complete(ctx context.Context, prompt string) (Completion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(prompt))
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, NewError("complete", ctx.Err(), errors.Is(ctx.Err(), context.DeadlineExceeded))
		}
		return Completion{}, NewError("complete", err, retryable(err))
	}
	if len(resp.Choices) == 0 {
		return Completion{}, NewError("complete", ErrEmptyCompletion, true)
	}

	out := Completion{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Duration: elapsed,
	}
	if out.Model == "" {
		out.Model = c.model
	}

	if c.logger != nil {
		c.logger.Debug("completion received",
			slog.String("model", out.Model),
			slog.Int("total_tokens", out.Usage.TotalTokens),
			slog.Float64("duration_ms", float64(elapsed.Microseconds())/1000.0),
		)
	}
	return out, nil
}

func (c *OpenAI) buildRequest(prompt string) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return isRetryableMessage(fmt.Sprint(err))
}
