package stategraph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks:
//  1. Errors recorded while building (duplicates, ambiguous rules, bad IDs)
//  2. START must have an outgoing rule
//  3. Rule sources must be existing nodes (or START)
//  4. Edge and mapping targets must be existing nodes or END
//  5. Every node must have an outgoing rule
//
// Unreachable nodes and a missing static path to END are logged as
// warnings. Routers decide at runtime, and the iteration cap bounds
// cycles that never finish.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	errs := append([]error(nil), g.errs...)

	if !g.hasRule(START) {
		errs = append(errs, ErrNoEntryPoint)
	}

	for _, from := range g.ruleOrder {
		if from != START {
			if _, exists := g.nodes[from]; !exists {
				errs = append(errs, fmt.Errorf("%w: rule source '%s' does not exist", ErrNodeNotFound, from))
			}
		}
		for _, to := range g.targetsOf(from) {
			switch {
			case to == END:
			case to == START:
				errs = append(errs, fmt.Errorf("%w: %s cannot route to %s", ErrInvalidNodeID, from, START))
			default:
				if _, exists := g.nodes[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: target '%s' of %s does not exist", ErrNodeNotFound, to, from))
				}
			}
		}
	}

	for _, id := range g.order {
		if !g.hasRule(id) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingEdge, id))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cg := g.buildCompiledGraph()
	cg.warnStructure()
	return cg, nil
}

// hasRule reports whether id has an outgoing rule. Caller holds g.mu.
func (g *Graph) hasRule(id string) bool {
	if _, ok := g.edges[id]; ok {
		return true
	}
	_, ok := g.routes[id]
	return ok
}

// targetsOf returns the distinct targets of from's rule, sorted for
// conditional rules. Caller holds g.mu.
func (g *Graph) targetsOf(from string) []string {
	if to, ok := g.edges[from]; ok {
		return []string{to}
	}
	rt, ok := g.routes[from]
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(rt.mapping))
	out := make([]string, 0, len(rt.mapping))
	for _, to := range rt.mapping {
		if !seen[to] {
			seen[to] = true
			out = append(out, to)
		}
	}
	sort.Strings(out)
	return out
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph) buildCompiledGraph() *CompiledGraph {
	nodes := make(map[string]NodeFunc, len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	edges := make(map[string]string, len(g.edges))
	for from, to := range g.edges {
		edges[from] = to
	}

	routes := make(map[string]*route, len(g.routes))
	for from, rt := range g.routes {
		mapping := make(map[string]string, len(rt.mapping))
		for label, to := range rt.mapping {
			mapping[label] = to
		}
		routes[from] = &route{router: rt.router, mapping: mapping}
	}

	successors := make(map[string][]string)
	predecessors := make(map[string][]string)
	for _, from := range g.ruleOrder {
		targets := g.targetsOf(from)
		successors[from] = targets
		for _, to := range targets {
			predecessors[to] = append(predecessors[to], from)
		}
	}

	return &CompiledGraph{
		name:          g.name,
		schema:        g.schema,
		nodes:         nodes,
		order:         append([]string(nil), g.order...),
		edges:         edges,
		routes:        routes,
		maxIterations: g.maxIterations,
		successors:    successors,
		predecessors:  predecessors,
	}
}

// warnStructure logs nodes unreachable from START and a missing path to END.
func (cg *CompiledGraph) warnStructure() {
	reachable := cg.reachableFrom(START)
	for _, id := range cg.order {
		if !reachable[id] {
			slog.Warn("node is unreachable from start", "graph", cg.name, "node_id", id)
		}
	}
	if !reachable[END] {
		slog.Warn("no path from start to end; runs can only stop at the iteration cap", "graph", cg.name)
	}
}

// reachableFrom returns the set of nodes (and END) reachable from start.
func (cg *CompiledGraph) reachableFrom(start string) map[string]bool {
	reachable := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range cg.successors[current] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reachable
}
