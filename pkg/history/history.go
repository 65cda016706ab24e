// Package history implements the linear undo stack used by the editor.
//
// The stack never truncates on undo. Entries after the current index stay
// around until the next commit, which discards them before appending.
package history

// Stack is an append-only sequence of states with a current position.
// The zero value is not usable; create stacks with New.
type Stack[T comparable] struct {
	entries []T
	index   int
	limit   int
}

// Option configures a Stack.
type Option func(*config)

type config struct {
	limit int
}

// WithLimit caps the number of retained entries. The oldest entries are
// evicted first. A limit of 0 or less keeps everything.
func WithLimit(n int) Option {
	return func(c *config) {
		c.limit = n
	}
}

// New creates a stack seeded with one entry.
func New[T comparable](seed T, opts ...Option) *Stack[T] {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Stack[T]{
		entries: []T{seed},
		limit:   cfg.limit,
	}
}

// Current returns the entry at the current index.
func (s *Stack[T]) Current() T {
	return s.entries[s.index]
}

// Index returns the current position.
func (s *Stack[T]) Index() int {
	return s.index
}

// Len returns the number of retained entries.
func (s *Stack[T]) Len() int {
	return len(s.entries)
}

// CanUndo reports whether Undo would move the index.
func (s *Stack[T]) CanUndo() bool {
	return s.index > 0
}

// Entries returns a copy of the retained entries, oldest first.
func (s *Stack[T]) Entries() []T {
	out := make([]T, len(s.entries))
	copy(out, s.entries)
	return out
}

// Commit records v as the new current state. It returns false and leaves the
// stack untouched when v equals the current entry.
func (s *Stack[T]) Commit(v T) bool {
	if v == s.entries[s.index] {
		return false
	}

	// Clear the discarded tail so large payloads can be collected.
	var zero T
	for i := s.index + 1; i < len(s.entries); i++ {
		s.entries[i] = zero
	}
	s.entries = append(s.entries[:s.index+1], v)
	s.index = len(s.entries) - 1

	if s.limit > 0 && len(s.entries) > s.limit {
		drop := len(s.entries) - s.limit
		s.entries = append(s.entries[:0], s.entries[drop:]...)
		s.index -= drop
	}
	return true
}

// Undo moves one step back and returns the new current entry. At the first
// entry it returns that entry and false.
func (s *Stack[T]) Undo() (T, bool) {
	if s.index == 0 {
		return s.entries[0], false
	}
	s.index--
	return s.entries[s.index], true
}
