package state

// Reducer combines a field's previous value with an incoming one.
// Reducers must be pure. If the field has no previous value, prev is the
// zero value of T.
type Reducer[T any] func(prev, incoming T) (T, error)

// Number is the set of types accepted by Sum.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Overwrite returns a reducer that replaces the previous value.
// This is what a field without a reducer does; it exists for explicitness.
func Overwrite[T any]() Reducer[T] {
	return func(_, incoming T) (T, error) {
		return incoming, nil
	}
}

// Append returns a reducer that concatenates incoming elements after the
// previous ones. The result never shares a backing array with either input.
func Append[E any]() Reducer[[]E] {
	return func(prev, incoming []E) ([]E, error) {
		out := make([]E, 0, len(prev)+len(incoming))
		out = append(out, prev...)
		return append(out, incoming...), nil
	}
}

// Sum returns a reducer that adds the incoming value to the previous one.
func Sum[N Number]() Reducer[N] {
	return func(prev, incoming N) (N, error) {
		return prev + incoming, nil
	}
}

// cloneSlice copies a slice, keeping empty slices non-nil.
func cloneSlice[E any](s []E) []E {
	out := make([]E, len(s))
	copy(out, s)
	return out
}
