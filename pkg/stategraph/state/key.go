package state

// Key is a typed handle to a declared field.
//
// Keys carry no state of their own; they only remember the field name and
// the Go type of its values.
type Key[T any] struct {
	name string
}

// NewKey returns a key for the field with the given name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the field name.
func (k Key[T]) Name() string {
	return k.name
}

// Get returns the field value, or the zero value of T if the field is unset.
func (k Key[T]) Get(s State) T {
	v, _ := k.Lookup(s)
	return v
}

// Lookup returns the field value and whether it is set.
func (k Key[T]) Lookup(s State) (T, bool) {
	var zero T
	raw, ok := s.Get(k.name)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// To pairs the key with a value for use in NewUpdate.
func (k Key[T]) To(v T) Entry {
	return Entry{Name: k.name, Value: v}
}

// Entry is a single field assignment inside an Update.
type Entry struct {
	Name  string
	Value any
}

// Update is a partial state update returned by a node.
// Keys are field names; a nil value means the field is absent.
type Update map[string]any

// NewUpdate builds an Update from typed entries.
//
// Example:
//
//	return state.NewUpdate(Phase.To("execute"), Plan.To(text)), nil
func NewUpdate(entries ...Entry) Update {
	u := make(Update, len(entries))
	for _, e := range entries {
		u[e.Name] = e.Value
	}
	return u
}

// Set assigns a field in the update and returns the update for chaining.
func (u Update) Set(e Entry) Update {
	u[e.Name] = e.Value
	return u
}
