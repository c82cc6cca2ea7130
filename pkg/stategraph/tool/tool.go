package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
)

// ParamType is the JSON type of a parameter.
type ParamType string

// Parameter types.
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Param describes one tool argument.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`

	// Pattern, if set, must match string values. Only valid on TypeString.
	Pattern string `json:"pattern,omitempty"`

	// Hint replaces the default message when Pattern does not match.
	Hint string `json:"-"`
}

// Args are tool arguments keyed by parameter name.
type Args map[string]any

// String returns the named argument as a string, or "" if absent.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Func runs a tool with validated arguments.
// Returning a *ToolInputError reports bad input rather than a failure.
type Func func(ctx context.Context, args Args) (any, error)

// Tool is a named, described, callable function.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	Fn          Func    `json:"-"`

	once       sync.Once
	compileErr error
	patterns   map[string]*regexp.Regexp
}

// ErrInvalidTool is returned when a tool definition is unusable.
var ErrInvalidTool = errors.New("invalid tool")

// ToolInputError describes arguments a tool rejected.
type ToolInputError struct {
	Tool    string
	Param   string
	Message string
}

func (e *ToolInputError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Param, e.Message)
}

// Result is the outcome of a tool call.
type Result struct {
	Tool       string          `json:"tool"`
	Value      any             `json:"value,omitempty"`
	InputError *ToolInputError `json:"input_error,omitempty"`
}

// OK reports whether the call ran with valid input.
func (r Result) OK() bool {
	return r.InputError == nil
}

// String renders the result for display or for feeding back to a model.
func (r Result) String() string {
	if r.InputError != nil {
		return r.InputError.Message
	}
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return fmt.Sprint(r.Value)
	}
	return string(b)
}

// compile checks the definition and prepares parameter patterns once.
func (t *Tool) compile() error {
	t.once.Do(func() { t.compileErr = t.build() })
	return t.compileErr
}

func (t *Tool) build() error {
	var errs []error
	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, fmt.Errorf("%w: empty name", ErrInvalidTool))
	}
	if t.Fn == nil {
		errs = append(errs, fmt.Errorf("%w: %s has no function", ErrInvalidTool, t.Name))
	}
	seen := make(map[string]bool, len(t.Params))
	t.patterns = make(map[string]*regexp.Regexp)
	for _, p := range t.Params {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%w: %s has an unnamed parameter", ErrInvalidTool, t.Name))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%w: %s declares %s twice", ErrInvalidTool, t.Name, p.Name))
		}
		seen[p.Name] = true
		switch p.Type {
		case TypeString, TypeNumber, TypeBoolean:
		default:
			errs = append(errs, fmt.Errorf("%w: %s.%s has unknown type %q", ErrInvalidTool, t.Name, p.Name, p.Type))
		}
		if p.Pattern != "" && p.Type != TypeString {
			errs = append(errs, fmt.Errorf("%w: %s.%s: pattern requires a string parameter, got %s", ErrInvalidTool, t.Name, p.Name, p.Type))
			continue
		}
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s.%s: %v", ErrInvalidTool, t.Name, p.Name, err))
				continue
			}
			t.patterns[p.Name] = re
		}
	}
	return errors.Join(errs...)
}

// validate returns nil or the first problem with args.
func (t *Tool) validate(args Args) *ToolInputError {
	known := make(map[string]bool, len(t.Params))
	for _, p := range t.Params {
		known[p.Name] = true
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return &ToolInputError{Tool: t.Name, Param: p.Name, Message: "missing required parameter " + p.Name}
			}
			continue
		}
		if !hasType(v, p.Type) {
			return &ToolInputError{Tool: t.Name, Param: p.Name, Message: fmt.Sprintf("%s must be a %s, got %T", p.Name, p.Type, v)}
		}
		if re := t.patterns[p.Name]; re != nil && !re.MatchString(v.(string)) {
			msg := p.Hint
			if msg == "" {
				msg = fmt.Sprintf("%s does not match %s", p.Name, p.Pattern)
			}
			return &ToolInputError{Tool: t.Name, Param: p.Name, Message: msg}
		}
	}
	for name := range args {
		if !known[name] {
			return &ToolInputError{Tool: t.Name, Param: name, Message: "unknown parameter " + name}
		}
	}
	return nil
}

func hasType(v any, want ParamType) bool {
	switch want {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64, int32, json.Number:
			return true
		}
	}
	return false
}

// Call validates args and runs the tool.
func (t *Tool) Call(ctx context.Context, args Args) (Result, error) {
	if err := t.compile(); err != nil {
		return Result{}, err
	}
	res := Result{Tool: t.Name}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if ierr := t.validate(args); ierr != nil {
		res.InputError = ierr
		return res, nil
	}

	v, err := t.Fn(ctx, args)
	if err != nil {
		var ierr *ToolInputError
		if errors.As(err, &ierr) {
			if ierr.Tool == "" {
				ierr.Tool = t.Name
			}
			res.InputError = ierr
			return res, nil
		}
		return res, fmt.Errorf("tool %s: %w", t.Name, err)
	}
	res.Value = v
	return res, nil
}

// CallJSON parses raw as a JSON object of arguments and calls the tool.
// Malformed JSON, as models sometimes produce, is repaired first.
func (t *Tool) CallJSON(ctx context.Context, raw string) (Result, error) {
	args, err := ParseArgs(raw)
	if err != nil {
		return Result{Tool: t.Name, InputError: &ToolInputError{Tool: t.Name, Message: err.Error()}}, nil
	}
	return t.Call(ctx, args)
}

// ParseArgs decodes a JSON object, repairing it if it does not parse.
func ParseArgs(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal([]byte(raw), &args); err == nil && args != nil {
		return args, nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args == nil {
		return nil, errors.New("invalid arguments: expected a JSON object")
	}
	return args, nil
}
