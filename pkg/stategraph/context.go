package stategraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context provides execution context to nodes and routers.
// It extends context.Context with run metadata and a logger.
//
// Context is immutable. The executor derives one per step.
type Context interface {
	context.Context

	// Logger returns a logger enriched with run_id, node_id and step.
	// Never returns nil.
	Logger() *slog.Logger

	// RunID returns the unique identifier of the run.
	RunID() string

	// NodeID returns the node being executed (START while routing the entry).
	NodeID() string

	// Step returns the 1-based index of the current node invocation.
	Step() int
}

type executionContext struct {
	context.Context

	logger *slog.Logger
	runID  string
	nodeID string
	step   int
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) NodeID() string       { return c.nodeID }
func (c *executionContext) Step() int            { return c.step }

// ContextOption configures a Context built with NewContext.
type ContextOption func(*executionContext)

// WithContextLogger sets the logger of the context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier. Defaults to a new UUID.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithContextNode sets the node ID and step reported by the context.
func WithContextNode(nodeID string, step int) ContextOption {
	return func(c *executionContext) {
		c.nodeID = nodeID
		c.step = step
	}
}

// NewContext wraps a context.Context. The executor builds its own contexts;
// NewContext is for calling node and router functions directly, for
// example in tests.
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// forStep derives the context for one node invocation.
func (c *executionContext) forStep(ctx context.Context, nodeID string, step int) *executionContext {
	return &executionContext{
		Context: ctx,
		logger:  c.logger.With("run_id", c.runID, "node_id", nodeID, "step", step),
		runID:   c.runID,
		nodeID:  nodeID,
		step:    step,
	}
}
