package stategraph

import "github.com/randalmurphal/stategraph/pkg/stategraph/state"

// START is the pseudo-node a run begins at. Its outgoing rule selects the
// first real node; it is never invoked and does not count as a step.
const START = "__start__"

// END is the terminal marker. A transition to END finishes the run.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// A node receives a read-only snapshot and returns a partial update.
// Fields absent from the update (or set to nil) keep their previous value.
//
// Example:
//
//	func greet(ctx stategraph.Context, s state.State) (state.Update, error) {
//	    return state.NewUpdate(Output.To("hello " + Name.Get(s))), nil
//	}
type NodeFunc func(ctx Context, s state.State) (state.Update, error)

// RouterFunc computes a route label from the merged state.
// The label is looked up in the mapping given to AddConditionalEdges.
type RouterFunc func(ctx Context, s state.State) string
