package journal

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in memory. Suitable for tests and one-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	order   []string
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.entries[e.RunID]; !ok {
		s.order = append(s.order, e.RunID)
	}
	s.entries[e.RunID] = append(s.entries[e.RunID], e)
	return nil
}

// Entries implements Store.
func (s *MemoryStore) Entries(_ context.Context, runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Entry, len(s.entries[runID]))
	copy(out, s.entries[runID])
	return out, nil
}

// Runs implements Store.
func (s *MemoryStore) Runs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
