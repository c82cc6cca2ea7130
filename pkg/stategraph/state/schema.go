package state

import (
	"errors"
	"fmt"
	"sort"
)

// Schema is a closed, immutable set of field declarations.
// It is safe for concurrent use once defined.
type Schema struct {
	fields map[string]FieldDef
	order  []string
}

// DefineSchema builds a schema from field declarations.
// Returns an error if a field name is empty or declared twice.
// Multiple errors are joined together.
func DefineSchema(fields ...FieldDef) (*Schema, error) {
	s := &Schema{
		fields: make(map[string]FieldDef, len(fields)),
		order:  make([]string, 0, len(fields)),
	}

	var errs []error
	for _, f := range fields {
		if f.name == "" {
			errs = append(errs, ErrEmptyFieldName)
			continue
		}
		if _, exists := s.fields[f.name]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateField, f.name))
			continue
		}
		s.fields[f.name] = f
		s.order = append(s.order, f.name)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

// MustDefineSchema is like DefineSchema but panics on error.
// Use it for package-level schema variables.
func MustDefineSchema(fields ...FieldDef) *Schema {
	s, err := DefineSchema(fields...)
	if err != nil {
		panic(fmt.Sprintf("state: %v", err))
	}
	return s
}

// Fields returns the declared field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Field returns the declaration for name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Has reports whether the schema declares name.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// New creates the initial snapshot of a run: field defaults first, then the
// caller's initial values. Initial values replace defaults; reducers are not
// applied to them.
func (s *Schema) New(initial Update) (State, error) {
	values := make(map[string]any, len(s.order))
	for _, name := range s.order {
		f := s.fields[name]
		if f.def != nil {
			values[name] = f.def()
		}
	}

	for _, name := range sortedKeys(initial) {
		incoming := initial[name]
		f, ok := s.fields[name]
		if !ok {
			return State{}, &StateMergeError{Field: name, Incoming: incoming, Err: ErrUnknownField}
		}
		if incoming == nil {
			continue
		}
		if !f.accepts(incoming) {
			return State{}, &StateMergeError{
				Field:    name,
				Previous: values[name],
				Incoming: incoming,
				Err:      fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, f.typ, incoming),
			}
		}
		values[name] = f.store(incoming)
	}

	return State{schema: s, values: values}, nil
}

// Merge combines prev with update field by field and returns the new
// snapshot. prev is never modified. On error the zero State is returned.
//
// A zero prev is treated as the schema's defaults.
func (s *Schema) Merge(prev State, update Update) (State, error) {
	if prev.IsZero() {
		var err error
		prev, err = s.New(nil)
		if err != nil {
			return State{}, err
		}
	}
	if prev.schema != s {
		return State{}, ErrSchemaMismatch
	}

	next := make(map[string]any, len(prev.values)+len(update))
	for k, v := range prev.values {
		next[k] = v
	}

	// Sorted so the reported error is deterministic when several fields fail.
	for _, name := range sortedKeys(update) {
		incoming := update[name]
		f, ok := s.fields[name]
		if !ok {
			return State{}, &StateMergeError{Field: name, Incoming: incoming, Err: ErrUnknownField}
		}
		if incoming == nil {
			continue
		}

		previous := next[name]
		if !f.accepts(incoming) {
			return State{}, &StateMergeError{
				Field:    name,
				Previous: previous,
				Incoming: incoming,
				Err:      fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, f.typ, incoming),
			}
		}

		if f.reduce == nil {
			next[name] = f.store(incoming)
			continue
		}

		merged, err := f.reduceSafely(previous, incoming)
		if err != nil {
			return State{}, &StateMergeError{
				Field:    name,
				Previous: previous,
				Incoming: incoming,
				Err:      err,
			}
		}
		next[name] = f.store(merged)
	}

	return State{schema: s, values: next}, nil
}

// Decode converts loosely typed input (decoded JSON, CLI flags) into an
// Update whose values have the declared field types. Numbers, strings and
// booleans are converted weakly, e.g. "3" decodes into an int field.
func (s *Schema) Decode(raw map[string]any) (Update, error) {
	u := make(Update, len(raw))
	for _, name := range sortedKeys(raw) {
		f, ok := s.fields[name]
		if !ok {
			return nil, &StateMergeError{Field: name, Incoming: raw[name], Err: ErrUnknownField}
		}
		if raw[name] == nil {
			continue
		}
		v, err := f.decode(raw[name])
		if err != nil {
			return nil, &StateMergeError{
				Field:    name,
				Incoming: raw[name],
				Err:      fmt.Errorf("%w: %v", ErrTypeMismatch, err),
			}
		}
		u[name] = v
	}
	return u, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
