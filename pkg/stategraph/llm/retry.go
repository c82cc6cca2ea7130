package llm

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how a retrying completer backs off.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Jitter spreads each wait by up to ±Jitter of its length (0.0-1.0).
	Jitter float64

	// Retryable decides which errors are worth another call.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// DefaultRetry is used when WithRetry gets a zero RetryConfig.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

type retrying struct {
	next   Completer
	cfg    RetryConfig
	logger *slog.Logger

	// sleep waits d or until ctx is done; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps c so retryable failures are retried with exponential
// backoff. Usage is summed over every attempt.
func WithRetry(c Completer, cfg RetryConfig, logger *slog.Logger) Completer {
	if cfg.MaxAttempts == 0 && cfg.InitialBackoff == 0 {
		cfg = DefaultRetry
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	if cfg.Retryable == nil {
		cfg.Retryable = IsRetryable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: c, cfg: cfg, logger: logger, sleep: sleepContext}
}

func (r *retrying) Complete(ctx context.Context, prompt string) (Completion, error) {
	backoff := r.cfg.InitialBackoff
	var usage TokenUsage
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Completion{}, NewError("complete", err, false)
		}

		resp, err := r.next.Complete(ctx, prompt)
		if err == nil {
			usage.Add(resp.Usage)
			resp.Usage = usage
			return resp, nil
		}
		lastErr = err
		usage.Add(resp.Usage)

		if !r.cfg.Retryable(err) || attempt == r.cfg.MaxAttempts {
			break
		}

		wait := jittered(backoff, r.cfg.Jitter)
		r.logger.Warn("completion failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("err", err.Error()),
		)
		if err := r.sleep(ctx, wait); err != nil {
			return Completion{}, NewError("complete", err, false)
		}

		backoff = time.Duration(float64(backoff) * r.cfg.BackoffFactor)
		if r.cfg.MaxBackoff > 0 && backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
	return Completion{}, lastErr
}

func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	delta := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + delta)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
