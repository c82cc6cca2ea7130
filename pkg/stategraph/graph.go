package stategraph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// DefaultMaxIterations bounds node invocations per run unless overridden.
const DefaultMaxIterations = 25

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge and
// AddConditionalEdges calls to define the workflow.
//
// Builder mistakes do not panic. They are recorded and reported together
// by Compile.
//
// Example:
//
//	graph := stategraph.NewGraph(schema).
//	    AddNode("fetch", fetchNode).
//	    AddNode("process", processNode).
//	    SetEntry("fetch").
//	    AddEdge("fetch", "process").
//	    AddEdge("process", stategraph.END)
//
//	compiled, err := graph.Compile()
type Graph struct {
	mu            sync.RWMutex
	name          string
	schema        *state.Schema
	nodes         map[string]NodeFunc
	order         []string
	edges         map[string]string
	routes        map[string]*route
	ruleOrder     []string
	maxIterations int
	errs          []error
}

// route is the conditional rule of one source node.
type route struct {
	router  RouterFunc
	mapping map[string]string
}

// NewGraph creates a new graph builder over the given state schema.
func NewGraph(schema *state.Schema) *Graph {
	g := &Graph{
		name:          "stategraph",
		schema:        schema,
		nodes:         make(map[string]NodeFunc),
		edges:         make(map[string]string),
		routes:        make(map[string]*route),
		maxIterations: DefaultMaxIterations,
	}
	if schema == nil {
		g.errs = append(g.errs, ErrNilSchema)
	}
	return g
}

// SetName sets the graph name used in logs, metrics, traces and the journal.
func (g *Graph) SetName(name string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	if name != "" {
		g.name = name
	}
	return g
}

// AddNode registers a named node.
//
// Recorded as a build error if:
//   - id is empty or contains whitespace
//   - id is a reserved marker (START, END, case-insensitive)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph) AddNode(id string, fn NodeFunc) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := validateNodeID(id); err != nil {
		g.errs = append(g.errs, err)
		return g
	}
	if fn == nil {
		g.errs = append(g.errs, fmt.Errorf("%w: node %s", ErrNilFunc, id))
		return g
	}
	if _, exists := g.nodes[id]; exists {
		g.errs = append(g.errs, &DuplicateNodeError{NodeID: id})
		return g
	}

	g.nodes[id] = fn
	g.order = append(g.order, id)
	return g
}

// AddEdge adds an unconditional edge. to may be a node ID or END; from may
// be START. Targets are validated by Compile, so edges can be added in any
// order relative to nodes.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.checkRuleSource(from, "edge to "+to) {
		return g
	}
	if to == START {
		g.errs = append(g.errs, fmt.Errorf("%w: edge from %s cannot target %s", ErrInvalidNodeID, from, START))
		return g
	}

	g.edges[from] = to
	g.ruleOrder = append(g.ruleOrder, from)
	return g
}

// AddConditionalEdges adds a routing rule. After from runs, router computes
// a label from the merged state and mapping translates it to the next node
// ID or END. A label missing from mapping fails the run with
// *UnmappedRouteError.
func (g *Graph) AddConditionalEdges(from string, router RouterFunc, mapping map[string]string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if router == nil {
		g.errs = append(g.errs, fmt.Errorf("%w: router for %s", ErrNilFunc, from))
		return g
	}
	if len(mapping) == 0 {
		g.errs = append(g.errs, fmt.Errorf("%w: conditional edges from %s", ErrEmptyMapping, from))
		return g
	}
	if !g.checkRuleSource(from, "conditional edges") {
		return g
	}

	copied := make(map[string]string, len(mapping))
	for label, to := range mapping {
		copied[label] = to
	}
	g.routes[from] = &route{router: router, mapping: copied}
	g.ruleOrder = append(g.ruleOrder, from)
	return g
}

// SetEntry designates the first node. It is shorthand for AddEdge(START, id).
func (g *Graph) SetEntry(id string) *Graph {
	return g.AddEdge(START, id)
}

// SetMaxIterations sets the default iteration cap of compiled runs.
// Default: 25.
func (g *Graph) SetMaxIterations(n int) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= 0 {
		g.errs = append(g.errs, fmt.Errorf("%w: %d", ErrInvalidMaxIterations, n))
		return g
	}
	g.maxIterations = n
	return g
}

// checkRuleSource records an error when from cannot take another outgoing rule.
// Caller holds g.mu.
func (g *Graph) checkRuleSource(from, attempted string) bool {
	if from == "" || from == END {
		g.errs = append(g.errs, fmt.Errorf("%w: rule source %q", ErrInvalidNodeID, from))
		return false
	}
	if to, ok := g.edges[from]; ok {
		g.errs = append(g.errs, &AmbiguousEdgeError{From: from, Existing: "edge to " + to, Attempted: attempted})
		return false
	}
	if _, ok := g.routes[from]; ok {
		g.errs = append(g.errs, &AmbiguousEdgeError{From: from, Existing: "conditional edges", Attempted: attempted})
		return false
	}
	return true
}

func validateNodeID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNodeID)
	}
	if strings.ContainsAny(id, " \t\n\r") {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidNodeID, id)
	}
	switch strings.ToLower(id) {
	case "end", END, "start", START:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidNodeID, id)
	}
	return nil
}
