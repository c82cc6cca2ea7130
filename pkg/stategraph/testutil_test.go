package stategraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Fields shared by the tests.
var (
	keyInput  = state.NewKey[string]("input")
	keyOutput = state.NewKey[string]("output")
	keyX      = state.NewKey[string]("x")
	keyTrail  = state.NewKey[[]string]("trail")
	keyCount  = state.NewKey[int]("count")
	keyDone   = state.NewKey[bool]("done")
)

func testSchema() *state.Schema {
	return state.MustDefineSchema(
		state.Text(keyInput),
		state.Text(keyOutput),
		state.Text(keyX),
		state.List(keyTrail),
		state.Counter(keyCount),
		state.Value(keyDone, false),
	)
}

// visit appends the node name to the trail.
func visit(name string) NodeFunc {
	return func(Context, state.State) (state.Update, error) {
		return state.NewUpdate(keyTrail.To([]string{name})), nil
	}
}

// increment adds one to the counter and records the visit.
func increment(name string) NodeFunc {
	return func(Context, state.State) (state.Update, error) {
		return state.NewUpdate(keyCount.To(1), keyTrail.To([]string{name})), nil
	}
}

func failing(err error) NodeFunc {
	return func(Context, state.State) (state.Update, error) {
		return nil, err
	}
}

func panicking(value any) NodeFunc {
	return func(Context, state.State) (state.Update, error) {
		panic(value)
	}
}

func always(label string) RouterFunc {
	return func(Context, state.State) string { return label }
}

func mustCompile(t *testing.T, g *Graph) *CompiledGraph {
	t.Helper()
	compiled, err := g.Compile()
	require.NoError(t, err)
	return compiled
}

func invoke(t *testing.T, cg *CompiledGraph, initial state.Update, opts ...RunOption) (state.State, error) {
	t.Helper()
	return cg.Invoke(context.Background(), initial, opts...)
}

// linearGraph is START -> a -> b -> c -> END.
func linearGraph() *Graph {
	return NewGraph(testSchema()).
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddNode("c", visit("c")).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", END)
}
