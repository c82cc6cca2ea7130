package stategraph

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNilSchema indicates NewGraph was given a nil schema.
	ErrNilSchema = errors.New("state schema cannot be nil")

	// ErrInvalidNodeID indicates an empty, whitespace or reserved node ID.
	ErrInvalidNodeID = errors.New("invalid node id")

	// ErrNilFunc indicates a nil node or router function.
	ErrNilFunc = errors.New("function cannot be nil")

	// ErrNoEntryPoint indicates START has no outgoing rule.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrNodeNotFound indicates a rule references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEmptyMapping indicates conditional edges without any label.
	ErrEmptyMapping = errors.New("conditional edges need at least one label")

	// ErrMissingEdge indicates a node without an outgoing rule.
	ErrMissingEdge = errors.New("node has no outgoing edge")

	// ErrInvalidMaxIterations indicates a non-positive iteration cap.
	ErrInvalidMaxIterations = errors.New("max iterations must be positive")
)

// Sentinel errors for execution.
var (
	// ErrNilContext indicates Invoke was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrIterationLimitExceeded indicates a run hit its iteration cap.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")

	// ErrCancelled indicates a run stopped because its context was done.
	ErrCancelled = errors.New("run cancelled")
)

// DuplicateNodeError reports a node ID registered twice.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node id: %s", e.NodeID)
}

// AmbiguousEdgeError reports a second outgoing rule for one source.
type AmbiguousEdgeError struct {
	From      string
	Existing  string
	Attempted string
}

func (e *AmbiguousEdgeError) Error() string {
	return fmt.Sprintf("node %s already has %s; cannot add %s", e.From, e.Existing, e.Attempted)
}

// GraphExecutionError is returned by Invoke for every failed run.
// Err holds the cause; State is the last successfully merged snapshot.
type GraphExecutionError struct {
	RunID  string
	Graph  string
	NodeID string
	Step   int
	State  state.State
	Err    error
}

func (e *GraphExecutionError) Error() string {
	return fmt.Sprintf("run %s failed at node %s (step %d): %v", e.RunID, e.NodeID, e.Step, e.Err)
}

func (e *GraphExecutionError) Unwrap() error {
	return e.Err
}

// NodeExecutionError wraps an error raised by a node or its router.
type NodeExecutionError struct {
	// Node is the node that failed.
	Node string
	// Op is "execute" for the node function and "route" for its router.
	Op string
	// Err is the underlying error (a *PanicError for recovered panics).
	Err error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.Node, e.Op, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// PanicError captures a recovered panic with its stack trace.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// UnmappedRouteError reports a router label with no mapping entry.
type UnmappedRouteError struct {
	From   string
	Label  string
	Labels []string
}

func (e *UnmappedRouteError) Error() string {
	return fmt.Sprintf("router of %s returned unmapped label %q (known: %v)", e.From, e.Label, e.Labels)
}

// IterationLimitError reports that a run would exceed its iteration cap.
type IterationLimitError struct {
	// Max is the configured cap.
	Max int
	// NextNode is the node that would have run next.
	NextNode string
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) before node %s", e.Max, e.NextNode)
}

func (e *IterationLimitError) Is(target error) bool {
	return target == ErrIterationLimitExceeded
}

// CancellationError reports a run stopped by its context.
type CancellationError struct {
	// NodeID is the node that was about to run or was running.
	NodeID string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if the node was running when the context ended.
	WasExecuting bool
}

func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

func (e *CancellationError) Unwrap() error {
	return e.Cause
}

func (e *CancellationError) Is(target error) bool {
	return target == ErrCancelled
}

// Error kinds returned by ErrorKind.
const (
	KindIterationLimit = "iteration_limit"
	KindUnmappedRoute  = "unmapped_route"
	KindStateMerge     = "state_merge"
	KindCancelled      = "cancelled"
	KindNodeExecution  = "node_execution"
	KindBuild          = "build"
	KindInternal       = "internal"
)

// ErrorKind classifies an error from Compile or Invoke into a stable string.
// Returns "" for nil.
//
// For run errors the kind comes from the direct cause on the outermost
// GraphExecutionError, so a node whose own error wraps another run's
// failure is still reported as node_execution.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var gerr *GraphExecutionError
	if errors.As(err, &gerr) {
		if kind := causeKind(gerr.Err); kind != "" {
			return kind
		}
	}

	var (
		limitErr  *IterationLimitError
		routeErr  *UnmappedRouteError
		mergeErr  *state.StateMergeError
		cancelErr *CancellationError
		nodeErr   *NodeExecutionError
		dupErr    *DuplicateNodeError
		ambErr    *AmbiguousEdgeError
	)
	switch {
	case errors.As(err, &limitErr):
		return KindIterationLimit
	case errors.As(err, &routeErr):
		return KindUnmappedRoute
	case errors.As(err, &mergeErr):
		return KindStateMerge
	case errors.As(err, &cancelErr):
		return KindCancelled
	case errors.As(err, &nodeErr):
		return KindNodeExecution
	case errors.As(err, &dupErr), errors.As(err, &ambErr),
		errors.Is(err, ErrNilSchema), errors.Is(err, ErrInvalidNodeID),
		errors.Is(err, ErrNilFunc), errors.Is(err, ErrNoEntryPoint),
		errors.Is(err, ErrNodeNotFound), errors.Is(err, ErrEmptyMapping),
		errors.Is(err, ErrMissingEdge), errors.Is(err, ErrInvalidMaxIterations):
		return KindBuild
	default:
		return KindInternal
	}
}

// causeKind maps the concrete type of a run failure's direct cause.
func causeKind(cause error) string {
	switch cause.(type) {
	case *IterationLimitError:
		return KindIterationLimit
	case *UnmappedRouteError:
		return KindUnmappedRoute
	case *state.StateMergeError:
		return KindStateMerge
	case *CancellationError:
		return KindCancelled
	case *NodeExecutionError:
		return KindNodeExecution
	}
	return ""
}
