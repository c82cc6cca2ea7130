package state

import "encoding/json"

// State is an immutable snapshot of every field's current value.
// The zero State has no schema and no values.
type State struct {
	schema *Schema
	values map[string]any
}

// Get returns the value of a field and whether it is set.
// Fields declared with a clone function return a copy.
func (s State) Get(name string) (any, bool) {
	v, ok := s.values[name]
	if !ok {
		return nil, false
	}
	if f, declared := s.schema.fields[name]; declared {
		return f.store(v), true
	}
	return v, true
}

// Values returns a copy of all set fields.
func (s State) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for name := range s.values {
		out[name], _ = s.Get(name)
	}
	return out
}

// Has reports whether the field is set.
func (s State) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Fields returns the declared field names in declaration order.
func (s State) Fields() []string {
	if s.schema == nil {
		return nil
	}
	return s.schema.Fields()
}

// Schema returns the schema the snapshot belongs to, or nil for the zero State.
func (s State) Schema() *Schema {
	return s.schema
}

// IsZero reports whether s is the zero State.
func (s State) IsZero() bool {
	return s.schema == nil
}

// MarshalJSON encodes the set fields as a JSON object.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}
