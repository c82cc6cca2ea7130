package state

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// FieldDef is a type-erased field declaration produced by Field and its
// helpers. It is consumed by DefineSchema.
type FieldDef struct {
	name    string
	typ     reflect.Type
	reduce  func(prev, incoming any) (any, error)
	def     func() any
	clone   func(any) any
	accepts func(any) bool
	decode  func(raw any) (any, error)
}

// Name returns the declared field name.
func (f FieldDef) Name() string {
	return f.name
}

// Type returns the Go type of the field's values.
func (f FieldDef) Type() reflect.Type {
	return f.typ
}

// HasReducer reports whether the field merges with a reducer instead of
// overwriting.
func (f FieldDef) HasReducer() bool {
	return f.reduce != nil
}

// HasDefault reports whether the field has a default value.
func (f FieldDef) HasDefault() bool {
	return f.def != nil
}

// FieldOption configures a field declared with Field.
type FieldOption[T any] func(*fieldConfig[T])

type fieldConfig[T any] struct {
	reducer    Reducer[T]
	def        T
	hasDefault bool
	clone      func(T) T
}

// WithReducer sets the reducer used to merge incoming values.
func WithReducer[T any](r Reducer[T]) FieldOption[T] {
	return func(c *fieldConfig[T]) {
		c.reducer = r
	}
}

// WithDefault sets the value a run starts with when the caller omits the field.
func WithDefault[T any](v T) FieldOption[T] {
	return func(c *fieldConfig[T]) {
		c.def = v
		c.hasDefault = true
	}
}

// WithClone sets a copy function applied whenever the value is stored or read.
// Use it for reference types (slices, maps) so snapshots do not alias.
func WithClone[T any](fn func(T) T) FieldOption[T] {
	return func(c *fieldConfig[T]) {
		c.clone = fn
	}
}

// Field declares a field for key with the given options.
// Without WithReducer the field uses overwrite semantics.
func Field[T any](key Key[T], opts ...FieldOption[T]) FieldDef {
	var cfg fieldConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	fd := FieldDef{
		name: key.name,
		typ:  reflect.TypeFor[T](),
		accepts: func(v any) bool {
			_, ok := v.(T)
			return ok
		},
		decode: func(raw any) (any, error) {
			if v, ok := raw.(T); ok {
				return v, nil
			}
			var out T
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:           &out,
				WeaklyTypedInput: true,
				TagName:          "json",
			})
			if err != nil {
				return nil, err
			}
			if err := dec.Decode(raw); err != nil {
				return nil, err
			}
			return out, nil
		},
	}

	if cfg.clone != nil {
		clone := cfg.clone
		fd.clone = func(v any) any {
			return clone(v.(T))
		}
	}

	if cfg.reducer != nil {
		r := cfg.reducer
		fd.reduce = func(prev, incoming any) (any, error) {
			p, _ := prev.(T)
			return r(p, incoming.(T))
		}
	}

	if cfg.hasDefault {
		def := cfg.def
		fd.def = func() any {
			if cfg.clone != nil {
				return cfg.clone(def)
			}
			return def
		}
	}

	return fd
}

// Text declares a string field with overwrite semantics and an empty default.
func Text(key Key[string]) FieldDef {
	return Field(key, WithDefault(""))
}

// Value declares an overwrite field with the given default.
func Value[T any](key Key[T], def T) FieldDef {
	return Field(key, WithDefault(def))
}

// List declares a slice field that appends incoming elements, starts empty,
// and is copied on read.
func List[E any](key Key[[]E]) FieldDef {
	return Field(key,
		WithReducer(Append[E]()),
		WithDefault([]E{}),
		WithClone(cloneSlice[E]),
	)
}

// Counter declares a numeric field that sums incoming values and starts at zero.
func Counter[N Number](key Key[N]) FieldDef {
	var zero N
	return Field(key, WithReducer(Sum[N]()), WithDefault(zero))
}

// reduceSafely runs the field reducer, converting panics into errors.
func (f FieldDef) reduceSafely(prev, incoming any) (merged any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reducer panicked: %v", r)
		}
	}()
	return f.reduce(prev, incoming)
}

// store applies the clone function, if any, before a value enters a snapshot.
func (f FieldDef) store(v any) any {
	if f.clone != nil {
		return f.clone(v)
	}
	return v
}
