// Package workflows contains the example graphs shipped with the CLI and
// the HTTP server.
package workflows

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph"
	"github.com/randalmurphal/stategraph/pkg/stategraph/llm"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
	"github.com/randalmurphal/stategraph/pkg/stategraph/tool"
)

// Errors returned by the catalog.
var (
	ErrNoCompleter     = errors.New("workflows: a completer is required")
	ErrUnknownWorkflow = errors.New("unknown workflow")
)

// DefaultMaxAttempts is the refine retry budget when Deps leaves it unset.
const DefaultMaxAttempts = 3

// Deps are the collaborators workflows are built with.
type Deps struct {
	Completer llm.Completer

	// Tools defaults to tool.Builtins().
	Tools *tool.Registry

	// MaxAttempts bounds the refine loop. Zero means DefaultMaxAttempts.
	MaxAttempts int

	// MaxIterations overrides each graph's own cap when positive.
	MaxIterations int
}

func (d Deps) withDefaults() (Deps, error) {
	if d.Completer == nil {
		return d, ErrNoCompleter
	}
	if d.Tools == nil {
		d.Tools = tool.Builtins()
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = DefaultMaxAttempts
	}
	return d, nil
}

// Workflow is a compiled graph with the metadata needed to drive it from
// plain text.
type Workflow struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputField  string `json:"input_field"`
	OutputField string `json:"output_field"`
	Example     string `json:"example"`

	Graph *stategraph.CompiledGraph `json:"-"`
}

// Input builds the initial update for a text request.
func (w *Workflow) Input(text string) state.Update {
	return state.Update{w.InputField: text}
}

// Output extracts the answer from a final state.
func (w *Workflow) Output(s state.State) string {
	v, ok := s.Get(w.OutputField)
	if !ok {
		return ""
	}
	switch out := v.(type) {
	case string:
		return out
	case []string:
		if len(out) == 0 {
			return ""
		}
		return out[len(out)-1]
	}
	return fmt.Sprint(v)
}

// Catalog holds the named workflows.
type Catalog struct {
	byName map[string]*Workflow
}

// NewCatalog builds every workflow against deps.
func NewCatalog(deps Deps) (*Catalog, error) {
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}

	c := &Catalog{byName: make(map[string]*Workflow)}
	builders := []func(Deps) (*Workflow, error){Pipeline, Assistant, Refine}
	var errs []error
	for _, build := range builders {
		w, err := build(deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.byName[w.Name] = w
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the named workflow.
func (c *Catalog) Get(name string) (*Workflow, error) {
	w, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrUnknownWorkflow, name, strings.Join(c.Names(), ", "))
	}
	return w, nil
}

// Names returns workflow names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the workflows sorted by name.
func (c *Catalog) List() []*Workflow {
	names := c.Names()
	out := make([]*Workflow, len(names))
	for i, name := range names {
		out[i] = c.byName[name]
	}
	return out
}

func compile(name string, g *stategraph.Graph, deps Deps) (*stategraph.CompiledGraph, error) {
	if deps.MaxIterations > 0 {
		g.SetMaxIterations(deps.MaxIterations)
	}
	compiled, err := g.SetName(name).Compile()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return compiled, nil
}

// jsonText encodes v without HTML escaping.
func jsonText(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
