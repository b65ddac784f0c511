package uistate

import "sync"

type pendingWrite[T any] struct {
	version uint64
	value   T
}

// Slot is a committed value overlaid with ordered optimistic writes.
// Visible returns the newest pending write, or the committed value when
// nothing is pending.
type Slot[T any] struct {
	mu          sync.Mutex
	committed   T
	committedAt uint64
	pending     []pendingWrite[T]
	next        uint64
	clone       func(T) T
}

// NewSlot returns a slot whose committed value is initial. clone, if set,
// copies values that share memory (slices) before they are handed out.
func NewSlot[T any](initial T, clone func(T) T) *Slot[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Slot[T]{committed: initial, clone: clone}
}

// Visible returns the value consumers should observe.
func (s *Slot[T]) Visible() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.visibleLocked())
}

func (s *Slot[T]) visibleLocked() T {
	if n := len(s.pending); n > 0 {
		return s.pending[n-1].value
	}
	return s.committed
}

// Committed returns the last committed value.
func (s *Slot[T]) Committed() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.committed)
}

// Apply runs reduce on the visible value and records the result as a new
// pending write. It returns the write's version and value.
func (s *Slot[T]) Apply(reduce func(T) T) (uint64, T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	value := reduce(s.clone(s.visibleLocked()))
	s.pending = append(s.pending, pendingWrite[T]{version: s.next, value: value})
	return s.next, s.clone(value)
}

// Commit reconciles after the write with the given version was persisted:
// committed becomes value and every pending write up to version is dropped.
// Commits older than the current committed version are ignored and
// Commit reports false for them.
func (s *Slot[T]) Commit(version uint64, value T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= s.committedAt {
		return false
	}
	s.committed = s.clone(value)
	s.committedAt = version
	keep := s.pending[:0]
	for _, p := range s.pending {
		if p.version > version {
			keep = append(keep, p)
		}
	}
	s.pending = keep
	return true
}

// Superseded reports whether a write newer than version already committed.
func (s *Slot[T]) Superseded(version uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return version <= s.committedAt
}

// Reset replaces the committed value and drops all pending writes.
func (s *Slot[T]) Reset(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = s.clone(value)
	s.committedAt = s.next
	s.pending = nil
}

// Pending returns the number of writes not yet committed.
func (s *Slot[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
