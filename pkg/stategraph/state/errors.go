package state

import (
	"errors"
	"fmt"
)

// Sentinel errors for schema definition and merging.
var (
	// ErrUnknownField indicates an update named a field the schema does not declare.
	ErrUnknownField = errors.New("unknown field")

	// ErrTypeMismatch indicates an update value does not have the field's declared type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDuplicateField indicates two fields were declared with the same name.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrEmptyFieldName indicates a field was declared without a name.
	ErrEmptyFieldName = errors.New("field name cannot be empty")

	// ErrSchemaMismatch indicates a snapshot from another schema was merged.
	ErrSchemaMismatch = errors.New("state belongs to a different schema")
)

// StateMergeError reports a failed merge of a single field.
// Previous and Incoming hold both operands for diagnosis.
type StateMergeError struct {
	// Field is the field being merged.
	Field string
	// Previous is the value before the merge (nil if unset).
	Previous any
	// Incoming is the value from the update.
	Incoming any
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StateMergeError) Error() string {
	return fmt.Sprintf("merge field %s (previous=%v, incoming=%v): %v", e.Field, e.Previous, e.Incoming, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StateMergeError) Unwrap() error {
	return e.Err
}
