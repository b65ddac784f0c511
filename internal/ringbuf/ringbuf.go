// Package ringbuf provides a typed, fixed-capacity FIFO that evicts its oldest
// element on overflow. It is a thin layer over gods' circular buffer.
package ringbuf

import (
	"sync"

	"github.com/emirpasic/gods/queues/circularbuffer"
)

// Buffer is safe for concurrent use. Push order is preserved and, once full,
// every Push evicts exactly one element from the front before appending.
type Buffer[T any] struct {
	mu       sync.Mutex
	q        *circularbuffer.Queue
	capacity int
}

// New returns an empty buffer. capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{q: circularbuffer.New(capacity), capacity: capacity}
}

// Push appends v and returns the evicted element, if any.
func (b *Buffer[T]) Push(v T) (evicted T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushLocked(v)
}

func (b *Buffer[T]) pushLocked(v T) (evicted T, ok bool) {
	if b.q.Full() {
		if old, found := b.q.Dequeue(); found {
			evicted, ok = old.(T)
		}
	}
	b.q.Enqueue(v)
	return evicted, ok
}

// PushFront puts items back at the head in their given order, keeping the
// existing elements behind them. When the result exceeds capacity the oldest
// elements (the front of items first) are dropped. It returns how many were dropped.
func (b *Buffer[T]) PushFront(items ...T) int {
	if len(items) == 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rest := b.valuesLocked()
	b.q.Clear()
	dropped := 0
	for _, v := range items {
		if _, ev := b.pushLocked(v); ev {
			dropped++
		}
	}
	for _, v := range rest {
		if _, ev := b.pushLocked(v); ev {
			dropped++
		}
	}
	return dropped
}

// Pop removes and returns the oldest element.
func (b *Buffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	v, ok := b.q.Dequeue()
	if !ok {
		return zero, false
	}
	t, _ := v.(T)
	return t, true
}

// Peek returns the oldest element without removing it.
func (b *Buffer[T]) Peek() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	v, ok := b.q.Peek()
	if !ok {
		return zero, false
	}
	t, _ := v.(T)
	return t, true
}

// Drain removes and returns every element, oldest first.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.valuesLocked()
	b.q.Clear()
	return out
}

// Values returns a copy of the contents, oldest first.
func (b *Buffer[T]) Values() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valuesLocked()
}

func (b *Buffer[T]) valuesLocked() []T {
	raw := b.q.Values()
	out := make([]T, 0, len(raw))
	for _, v := range raw {
		if t, ok := v.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// RemoveFunc deletes every element for which match returns true and reports how many were removed.
func (b *Buffer[T]) RemoveFunc(match func(T) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := b.valuesLocked()
	b.q.Clear()
	removed := 0
	for _, v := range all {
		if match(v) {
			removed++
			continue
		}
		b.q.Enqueue(v)
	}
	return removed
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Size()
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return b.capacity }

// Clear empties the buffer.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Clear()
}
