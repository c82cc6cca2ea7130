package stategraph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

func TestErrorKind(t *testing.T) {
	wrap := func(cause error) error {
		return &GraphExecutionError{RunID: "r", NodeID: "n", Step: 1, Err: cause}
	}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"iteration limit", wrap(&IterationLimitError{Max: 5, NextNode: "a"}), KindIterationLimit},
		{"unmapped route", wrap(&UnmappedRouteError{From: "a", Label: "x"}), KindUnmappedRoute},
		{"state merge", wrap(&state.StateMergeError{Field: "f", Err: state.ErrTypeMismatch}), KindStateMerge},
		{"cancelled", wrap(&CancellationError{NodeID: "a", Cause: context.Canceled}), KindCancelled},
		{"node", wrap(&NodeExecutionError{Node: "a", Op: "execute", Err: errors.New("x")}), KindNodeExecution},
		{"panic", wrap(&NodeExecutionError{Node: "a", Op: "execute", Err: &PanicError{Value: 1}}), KindNodeExecution},
		{"node wrapping nested run failure", wrap(&NodeExecutionError{Node: "outer", Op: "execute",
			Err: &GraphExecutionError{RunID: "inner", NodeID: "x", Err: &IterationLimitError{Max: 2, NextNode: "x"}}}), KindNodeExecution},
		{"node wrapping merge error", wrap(&NodeExecutionError{Node: "a", Op: "execute",
			Err: fmt.Errorf("sub step: %w", &state.StateMergeError{Field: "f", Err: state.ErrUnknownField})}), KindNodeExecution},
		{"wrapped run error", fmt.Errorf("invoke: %w", wrap(&UnmappedRouteError{From: "a", Label: "x"})), KindUnmappedRoute},
		{"duplicate", &DuplicateNodeError{NodeID: "a"}, KindBuild},
		{"joined build", errors.Join(ErrNoEntryPoint, fmt.Errorf("%w: x", ErrMissingEdge)), KindBuild},
		{"other", errors.New("mystery"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	gerr := &GraphExecutionError{RunID: "run-1", NodeID: "b", Step: 2, Err: errors.New("boom")}
	assert.Equal(t, "run run-1 failed at node b (step 2): boom", gerr.Error())

	nodeErr := &NodeExecutionError{Node: "b", Op: "route", Err: errors.New("bad")}
	assert.Equal(t, "node b: route: bad", nodeErr.Error())

	routeErr := &UnmappedRouteError{From: "r", Label: "x", Labels: []string{"a", "b"}}
	assert.Contains(t, routeErr.Error(), `"x"`)

	limitErr := &IterationLimitError{Max: 5, NextNode: "a"}
	assert.Equal(t, "exceeded maximum iterations (5) before node a", limitErr.Error())

	cancelErr := &CancellationError{NodeID: "a", Cause: context.Canceled}
	assert.Equal(t, "cancelled before node a: context canceled", cancelErr.Error())
	cancelErr.WasExecuting = true
	assert.Equal(t, "cancelled during node a: context canceled", cancelErr.Error())

	amb := &AmbiguousEdgeError{From: "a", Existing: "edge to b", Attempted: "edge to c"}
	assert.Equal(t, "node a already has edge to b; cannot add edge to c", amb.Error())

	assert.Equal(t, "panic: 42", (&PanicError{Value: 42}).Error())
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("root")
	err := &GraphExecutionError{Err: &NodeExecutionError{Node: "a", Op: "execute", Err: cause}}
	assert.ErrorIs(t, err, cause)

	limit := &GraphExecutionError{Err: &IterationLimitError{Max: 1}}
	assert.ErrorIs(t, limit, ErrIterationLimitExceeded)
	assert.NotErrorIs(t, limit, ErrCancelled)

	cancelled := &GraphExecutionError{Err: &CancellationError{Cause: context.DeadlineExceeded}}
	assert.ErrorIs(t, cancelled, ErrCancelled)
	assert.ErrorIs(t, cancelled, context.DeadlineExceeded)
}
