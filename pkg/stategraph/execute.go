package stategraph

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/stategraph/pkg/stategraph/journal"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Phase is the lifecycle position of a run.
type Phase string

// Run phases. A run alternates Pending and Running until it reaches
// Terminal (END) or Failed.
const (
	PhasePending  Phase = journal.PhasePending
	PhaseRunning  Phase = "running"
	PhaseTerminal Phase = journal.PhaseTerminal
	PhaseFailed   Phase = journal.PhaseFailed
)

// Invoke runs the graph from START until END.
//
// Execution flow:
//  1. Build the initial state (schema defaults overwritten by initial)
//  2. Resolve START's rule to the first node
//  3. Check the iteration cap, then cancellation
//  4. Invoke the node and merge its update
//  5. Resolve the node's rule against the merged state
//  6. Repeat until END is reached or an error occurs
//
// On success the final merged state is returned. On failure the returned
// state is the zero value and the error is a *GraphExecutionError carrying
// the cause and the last good snapshot.
//
// Example:
//
//	final, err := compiled.Invoke(ctx, state.NewUpdate(Input.To("hi")))
//	var gerr *stategraph.GraphExecutionError
//	if errors.As(err, &gerr) {
//	    log.Printf("failed at %s: %v", gerr.NodeID, gerr.Err)
//	}
func (cg *CompiledGraph) Invoke(ctx context.Context, initial state.Update, opts ...RunOption) (final state.State, runErr error) {
	if ctx == nil {
		return state.State{}, ErrNilContext
	}

	cfg := cg.defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	nodeLogger := cfg.logger
	if nodeLogger == nil {
		nodeLogger = slog.Default()
	}
	r := &run{
		graph: cg,
		cfg:   &cfg,
		phase: PhasePending,
		base:  &executionContext{Context: ctx, logger: nodeLogger, runID: cfg.runID},
	}

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, cg.name, cfg.runID)

	execCtx := ctx
	if cfg.tracingEnabled {
		var runSpan trace.Span
		execCtx, runSpan = cfg.spans.StartRunSpan(ctx, cg.name, cfg.runID)
		defer func() {
			cfg.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	final, runErr = r.execute(execCtx, initial)

	duration := time.Since(startTime)
	durationMs := float64(duration.Microseconds()) / 1000
	kind := ErrorKind(runErr)
	cfg.metrics.RecordGraphRun(ctx, cg.name, kind, r.completed, duration)

	if runErr != nil {
		observability.LogRunError(cfg.logger, cfg.runID, runErr, kind, durationMs, r.current)
		return state.State{}, runErr
	}
	observability.LogRunComplete(cfg.logger, cfg.runID, durationMs, r.completed)
	return final, nil
}

// run is the mutable record of one Invoke call.
type run struct {
	graph *CompiledGraph
	cfg   *runConfig
	base  *executionContext

	phase     Phase
	state     state.State
	current   string
	step      int
	completed int
}

func (r *run) execute(ctx context.Context, initial state.Update) (state.State, error) {
	r.current = START

	st, err := r.graph.schema.New(initial)
	if err != nil {
		return state.State{}, r.fail(ctx, err)
	}
	r.state = st

	next, _, err := r.resolve(ctx, START)
	if err != nil {
		return state.State{}, r.fail(ctx, err)
	}

	for next != END {
		r.step++
		r.current = next
		if r.step > r.cfg.maxIterations {
			return state.State{}, r.fail(ctx, &IterationLimitError{
				Max:      r.cfg.maxIterations,
				NextNode: next,
			})
		}

		if cause := ctx.Err(); cause != nil {
			return state.State{}, r.fail(ctx, &CancellationError{NodeID: next, Cause: cause})
		}

		r.phase = PhaseRunning
		update, err := r.invokeNode(ctx, next)
		if err != nil {
			return state.State{}, r.fail(ctx, err)
		}

		merged, err := r.graph.schema.Merge(r.state, update)
		if err != nil {
			return state.State{}, r.fail(ctx, err)
		}
		r.state = merged
		r.completed++

		to, label, err := r.resolve(ctx, next)
		if err != nil {
			return state.State{}, r.fail(ctx, err)
		}

		r.phase = PhasePending
		r.record(ctx, journal.Entry{
			Step:   r.step,
			Node:   next,
			Label:  label,
			Next:   to,
			Update: r.encodeUpdate(update),
		})
		next = to
	}

	r.phase = PhaseTerminal
	r.current = END
	r.record(ctx, journal.Entry{Step: r.step, Node: END})
	return r.state, nil
}

// invokeNode runs one node with tracing, metrics and panic recovery.
func (r *run) invokeNode(ctx context.Context, id string) (state.Update, error) {
	fn := r.graph.nodes[id]

	nodeCtx := ctx
	var nodeSpan trace.Span
	if r.cfg.tracingEnabled {
		nodeCtx, nodeSpan = r.cfg.spans.StartNodeSpan(ctx, id, r.step)
	}

	observability.LogNodeStart(r.cfg.logger, id, r.step)
	nodeStart := time.Now()

	update, err := callNode(fn, r.base.forStep(nodeCtx, id, r.step), r.state)

	nodeDuration := time.Since(nodeStart)
	r.cfg.metrics.RecordNodeExecution(nodeCtx, r.graph.name, id, nodeDuration, err)
	if r.cfg.tracingEnabled {
		r.cfg.spans.EndSpanWithError(nodeSpan, err)
	}

	if err != nil {
		observability.LogNodeError(r.cfg.logger, id, r.step, err)
		if cause := ctx.Err(); cause != nil {
			return nil, &CancellationError{NodeID: id, Cause: cause, WasExecuting: true}
		}
		return nil, &NodeExecutionError{Node: id, Op: "execute", Err: err}
	}
	observability.LogNodeComplete(r.cfg.logger, id, r.step, float64(nodeDuration.Microseconds())/1000)
	return update, nil
}

// resolve applies from's outgoing rule to the current state.
func (r *run) resolve(ctx context.Context, from string) (to, label string, err error) {
	if to, ok := r.graph.edges[from]; ok {
		return to, "", nil
	}

	rt := r.graph.routes[from]
	label, err = callRouter(rt.router, r.base.forStep(ctx, from, r.step), r.state)
	if err != nil {
		return "", "", &NodeExecutionError{Node: from, Op: "route", Err: err}
	}

	to, ok := rt.mapping[label]
	if !ok {
		return "", label, &UnmappedRouteError{From: from, Label: label, Labels: r.graph.Labels(from)}
	}

	r.cfg.metrics.RecordRoute(ctx, r.graph.name, from, label)
	observability.LogRoute(r.cfg.logger, from, label, to)
	if r.cfg.tracingEnabled {
		r.cfg.spans.AddSpanEvent(ctx, "route",
			attribute.String("from", from),
			attribute.String("label", label),
			attribute.String("to", to),
		)
	}
	return to, label, nil
}

// fail moves the run to PhaseFailed and wraps cause.
func (r *run) fail(ctx context.Context, cause error) error {
	r.phase = PhaseFailed
	r.record(ctx, journal.Entry{Step: r.step, Node: r.current, Error: cause.Error()})
	return &GraphExecutionError{
		RunID:  r.cfg.runID,
		Graph:  r.graph.name,
		NodeID: r.current,
		Step:   r.step,
		State:  r.state,
		Err:    cause,
	}
}

// record appends a journal entry stamped with the run's identity and phase.
func (r *run) record(ctx context.Context, e journal.Entry) {
	if r.cfg.journal == nil {
		return
	}
	e.RunID = r.cfg.runID
	e.Graph = r.graph.name
	e.Phase = string(r.phase)
	e.Timestamp = time.Now()
	if err := r.cfg.journal.Append(context.WithoutCancel(ctx), e); err != nil {
		observability.LogJournalError(r.cfg.logger, e.Node, err)
	}
}

func (r *run) encodeUpdate(update state.Update) json.RawMessage {
	if r.cfg.journal == nil || len(update) == 0 {
		return nil
	}
	data, err := json.Marshal(update)
	if err != nil {
		observability.LogJournalError(r.cfg.logger, r.current, err)
		return nil
	}
	return data
}

func callNode(fn NodeFunc, ctx Context, s state.State) (update state.Update, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			update = nil
			err = &PanicError{Value: rec, Stack: string(debug.Stack())}
		}
	}()
	return fn(ctx, s)
}

func callRouter(fn RouterFunc, ctx Context, s state.State) (label string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: string(debug.Stack())}
		}
	}()
	return fn(ctx, s), nil
}
