package stategraph

import (
	"sort"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile on a Graph builder.
//
// CompiledGraph is safe for concurrent Invoke calls. Each run has its own
// state and step counter.
type CompiledGraph struct {
	name          string
	schema        *state.Schema
	nodes         map[string]NodeFunc
	order         []string
	edges         map[string]string
	routes        map[string]*route
	maxIterations int

	successors   map[string][]string
	predecessors map[string][]string
}

// Name returns the graph name.
func (cg *CompiledGraph) Name() string { return cg.name }

// Schema returns the state schema runs are built from.
func (cg *CompiledGraph) Schema() *state.Schema { return cg.schema }

// MaxIterations returns the default iteration cap.
func (cg *CompiledGraph) MaxIterations() int { return cg.maxIterations }

// NodeIDs returns node identifiers in declaration order.
func (cg *CompiledGraph) NodeIDs() []string {
	return append([]string(nil), cg.order...)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// EntryTargets returns the possible first nodes (the targets of START).
func (cg *CompiledGraph) EntryTargets() []string {
	return cg.Successors(START)
}

// Successors returns the possible next nodes (or END) after id.
// For conditional rules this is every distinct mapping target, sorted.
// Returns nil for END or unknown nodes.
func (cg *CompiledGraph) Successors(id string) []string {
	return append([]string(nil), cg.successors[id]...)
}

// Predecessors returns the sources whose rules can lead to id.
func (cg *CompiledGraph) Predecessors(id string) []string {
	return append([]string(nil), cg.predecessors[id]...)
}

// IsConditional returns true if the node has a conditional rule.
func (cg *CompiledGraph) IsConditional(id string) bool {
	_, ok := cg.routes[id]
	return ok
}

// Labels returns the route labels of a conditional node, sorted.
func (cg *CompiledGraph) Labels(id string) []string {
	rt, ok := cg.routes[id]
	if !ok {
		return nil
	}
	labels := make([]string, 0, len(rt.mapping))
	for label := range rt.mapping {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Mapping returns a copy of the label mapping of a conditional node.
func (cg *CompiledGraph) Mapping(id string) map[string]string {
	rt, ok := cg.routes[id]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(rt.mapping))
	for label, to := range rt.mapping {
		out[label] = to
	}
	return out
}
