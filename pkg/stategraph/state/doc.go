/*
Package state provides the declared, reducer-driven state used by stategraph.

# Overview

A Schema is a closed set of named fields. Each field has a Go type, an
optional Reducer that combines a previous value with an incoming one, and an
optional default. Nodes never mutate state directly: they return a partial
Update, and the Schema merges it into the previous snapshot to produce a new
State.

# Declaring Fields

Fields are declared through typed keys so node code reads and writes values
without type assertions:

	var (
	    Input    = state.NewKey[string]("input")
	    Messages = state.NewKey[[]string]("messages")
	    Attempts = state.NewKey[int]("attempts")
	)

	schema := state.MustDefineSchema(
	    state.Text(Input),
	    state.List(Messages),   // append reducer, empty default
	    state.Counter(Attempts), // sum reducer, zero default
	)

# Merge Semantics

For every field present in an update:

  - a nil value is treated as absent and the previous value is kept
  - a field without a reducer is overwritten by the incoming value
  - a field with a reducer is set to reducer(previous, incoming)

Fields absent from the update are carried over unchanged. Updates that name
an undeclared field, carry a value of the wrong type, or whose reducer fails
are rejected with a *StateMergeError and the previous snapshot is left as is.

# Aliasing

State snapshots are immutable. Fields declared with a clone function (List
does this) are copied whenever they are read or stored, so a node appending
to a slice it received cannot change the live state.
*/
package state
