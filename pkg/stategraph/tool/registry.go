package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrDuplicateTool = errors.New("tool already registered")
	ErrToolNotFound  = errors.New("tool not found")
)

// Registry holds tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds tools. Registration stops at the first invalid or
// duplicate tool.
func (r *Registry) Register(tools ...*Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		if t == nil {
			return fmt.Errorf("%w: nil", ErrInvalidTool)
		}
		if err := t.compile(); err != nil {
			return err
		}
		if _, ok := r.tools[t.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
		}
		r.tools[t.Name] = t
	}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(tools ...*Tool) *Registry {
	if err := r.Register(tools...); err != nil {
		panic(err)
	}
	return r
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs the named tool.
func (r *Registry) Call(ctx context.Context, name string, args Args) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{Tool: name}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.Call(ctx, args)
}

// CallJSON runs the named tool with JSON arguments.
func (r *Registry) CallJSON(ctx context.Context, name, raw string) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{Tool: name}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.CallJSON(ctx, raw)
}
