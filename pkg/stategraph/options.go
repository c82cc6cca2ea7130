package stategraph

import (
	"log/slog"

	"github.com/randalmurphal/stategraph/pkg/stategraph/journal"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
)

// runConfig holds configuration for one Invoke call.
type runConfig struct {
	maxIterations  int
	runID          string
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
	journal        journal.Store
}

func (cg *CompiledGraph) defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: cg.maxIterations,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxIterations overrides the graph's iteration cap for one run.
// Non-positive values are ignored.
//
// Example:
//
//	result, err := compiled.Invoke(ctx, initial, stategraph.WithMaxIterations(5))
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithRunID sets the run identifier. Defaults to a new UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithLogger enables run lifecycle logging and sets the logger handed to
// nodes. Without it nodes log to slog.Default() and the executor is silent.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics records node, run and route metrics.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing creates a span for the run and one per node.
func WithTracing(spans observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if spans != nil {
			c.spans = spans
			c.tracingEnabled = true
		}
	}
}

// WithJournal appends one entry per transition to store.
// Journal write failures are logged and do not fail the run.
func WithJournal(store journal.Store) RunOption {
	return func(c *runConfig) {
		c.journal = store
	}
}
