package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (Completion, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (Completion, error) {
	return f(ctx, prompt)
}

// Completion is the output of a completion call.
type Completion struct {
	Text         string        `json:"text"`
	Model        string        `json:"model,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        TokenUsage    `json:"usage"`
	Duration     time.Duration `json:"duration"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add adds other to u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ErrEmptyCompletion is returned when the backend answers with no choices.
var ErrEmptyCompletion = errors.New("empty completion")

// Error wraps a backend failure.
type Error struct {
	Op        string
	Err       error
	Retryable bool
}

// NewError creates an Error.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an Error marked retryable.
func IsRetryable(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Retryable
}

// isRetryableMessage checks if an error message indicates a transient error.
func isRetryableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "429") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "529")
}
