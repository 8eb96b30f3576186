// Package history keeps a bounded, insertion-ordered log of recent activity.
package history

import "sync"

// DefaultCapacity is used when a ring is created with a non-positive capacity.
const DefaultCapacity = 50

// Ring is a fixed-capacity circular buffer. Once full, each Push overwrites
// the oldest entry. Safe for concurrent use.
type Ring[T any] struct {
	mu       sync.RWMutex
	entries  []T
	capacity int
	head     int // index where the next write goes once full
}

// New creates a ring holding at most capacity entries.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends item, evicting the oldest entry when at capacity.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, item)
	} else {
		r.entries[r.head] = item
	}
	r.head = (r.head + 1) % r.capacity
}

// Snapshot returns the retained entries, oldest first, in a new slice.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]T, len(r.entries))
	if len(r.entries) < r.capacity {
		copy(result, r.entries)
		return result
	}
	// Full: head points at the oldest entry.
	n := copy(result, r.entries[r.head:])
	copy(result[n:], r.entries[:r.head])
	return result
}

// Len returns the number of retained entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Clear drops every entry.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	for i := range r.entries {
		r.entries[i] = zero
	}
	r.entries = r.entries[:0]
	r.head = 0
}
