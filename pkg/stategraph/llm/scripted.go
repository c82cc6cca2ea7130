package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrScriptExhausted is returned by Scripted once every reply was used.
var ErrScriptExhausted = errors.New("scripted completer has no replies left")

// Scripted returns canned replies in order. It is safe for concurrent use.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	errs    map[int]error
	next    int
	loop    bool
	prompts []string
}

// NewScripted creates a completer that answers with replies in order.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies, errs: make(map[int]error)}
}

// Loop makes the completer start over after the last reply.
func (s *Scripted) Loop() *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = true
	return s
}

// FailAt makes call number i (zero-based) fail with err.
func (s *Scripted) FailAt(i int, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[i] = err
	return s
}

// Complete implements Completer.
func (s *Scripted) Complete(ctx context.Context, prompt string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if err, ok := s.errs[call]; ok {
		return Completion{}, err
	}

	if s.next >= len(s.replies) {
		if !s.loop || len(s.replies) == 0 {
			return Completion{}, fmt.Errorf("%w (after %d)", ErrScriptExhausted, len(s.replies))
		}
		s.next = 0
	}
	reply := s.replies[s.next]
	s.next++
	return Completion{Text: reply, Model: "scripted", FinishReason: "stop"}, nil
}

// Prompts returns every prompt received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// CallCount returns the number of Complete calls.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Echo returns the prompt as the completion.
type Echo struct{}

// Complete implements Completer.
func (Echo) Complete(ctx context.Context, prompt string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	return Completion{Text: prompt, Model: "echo", FinishReason: "stop"}, nil
}
