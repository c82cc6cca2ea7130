// Package journal records the transitions of stategraph runs.
//
// A journal is an audit trail: the executor appends one Entry per step and
// never reads it back. Stores are safe for concurrent use.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Phase values written to Entry.Phase.
const (
	PhasePending  = "pending"
	PhaseTerminal = "terminal"
	PhaseFailed   = "failed"
)

// Entry is one recorded transition.
type Entry struct {
	RunID     string          `json:"run_id"`
	Graph     string          `json:"graph"`
	Step      int             `json:"step"`
	Node      string          `json:"node"`
	Phase     string          `json:"phase"`
	Label     string          `json:"label,omitempty"`
	Next      string          `json:"next,omitempty"`
	Update    json.RawMessage `json:"update,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store persists journal entries.
type Store interface {
	// Append records an entry. Entries of one run are kept in append order.
	Append(ctx context.Context, e Entry) error

	// Entries returns the entries of a run in append order.
	// Returns an empty slice (not an error) for unknown runs.
	Entries(ctx context.Context, runID string) ([]Entry, error)

	// Runs returns the known run IDs, oldest first.
	Runs(ctx context.Context) ([]string, error)

	// Close releases any resources.
	Close() error
}

var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")

	// ErrMissingRunID indicates an entry without a run ID.
	ErrMissingRunID = errors.New("journal entry has no run id")

	// ErrUnknownDriver indicates Open was given an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown journal driver")
)

func prepare(e Entry) (Entry, error) {
	if e.RunID == "" {
		return e, ErrMissingRunID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}
