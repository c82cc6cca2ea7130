package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// MissingAction specifies how to handle missing variables.
type MissingAction int

const (
	// MissingKeep leaves the placeholder untouched.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError fails rendering.
	MissingError
)

// Option configures a Template.
type Option func(*Template)

// WithMissingAction sets how missing variables are handled.
func WithMissingAction(action MissingAction) Option {
	return func(t *Template) { t.missing = action }
}

// Template is a parsed prompt.
type Template struct {
	text     string
	segments []segment
	vars     []string
	missing  MissingAction
}

// segment is literal text or, when name is set, a placeholder.
type segment struct {
	literal string
	name    string
	raw     string
}

// Parse compiles text into a Template.
func Parse(text string, opts ...Option) (*Template, error) {
	if strings.Contains(text, "${") {
		// Catch "${" openings that never form a valid placeholder.
		stripped := placeholder.ReplaceAllString(text, "")
		if i := strings.Index(stripped, "${"); i >= 0 {
			return nil, fmt.Errorf("prompt: malformed placeholder near %q", excerpt(stripped, i))
		}
	}

	t := &Template{text: text}
	for _, opt := range opts {
		opt(t)
	}

	seen := make(map[string]bool)
	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			t.segments = append(t.segments, segment{literal: text[last:m[0]]})
		}
		name := text[m[2]:m[3]]
		t.segments = append(t.segments, segment{name: name, raw: text[m[0]:m[1]]})
		if !seen[name] {
			seen[name] = true
			t.vars = append(t.vars, name)
		}
		last = m[1]
	}
	if last < len(text) {
		t.segments = append(t.segments, segment{literal: text[last:]})
	}
	return t, nil
}

// MustParse is Parse that panics on error.
func MustParse(text string, opts ...Option) *Template {
	t, err := Parse(text, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Text returns the source text.
func (t *Template) Text() string {
	return t.text
}

// Vars returns placeholder names in order of first appearance.
func (t *Template) Vars() []string {
	out := make([]string, len(t.vars))
	copy(out, t.vars)
	return out
}

// Render expands placeholders from vars.
func (t *Template) Render(vars map[string]any) (string, error) {
	var b strings.Builder
	var missing []string
	for _, seg := range t.segments {
		if seg.name == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := vars[seg.name]
		if !ok || v == nil {
			switch t.missing {
			case MissingEmpty:
			case MissingError:
				missing = append(missing, seg.name)
			default:
				b.WriteString(seg.raw)
			}
			continue
		}
		s, err := format(v)
		if err != nil {
			return "", fmt.Errorf("prompt: %s: %w", seg.name, err)
		}
		b.WriteString(s)
	}
	if len(missing) > 0 {
		return "", &UndefinedVariableError{Names: missing}
	}
	return b.String(), nil
}

// RenderState expands placeholders from a state snapshot.
func (t *Template) RenderState(s state.State) (string, error) {
	return t.Render(s.Values())
}

func format(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(val), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func excerpt(s string, i int) string {
	end := i + 16
	if end > len(s) {
		end = len(s)
	}
	return s[i:end]
}

// UndefinedVariableError is returned under MissingError when placeholders
// have no value.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// Render parses and renders text in one call with MissingKeep.
func Render(text string, vars map[string]any) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}
	return t.Render(vars)
}
