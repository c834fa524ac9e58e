// Package history provides the bounded operation log shared by the
// recorder-style emulations in this module. Entries are appended in arrival
// order and the oldest entries are evicted once the configured capacity is
// exceeded, so long-running suites cannot grow memory without bound.
package history

import "sync"

// DefaultCapacity is the entry limit applied when no explicit capacity is
// configured.
const DefaultCapacity = 1000

// Log is an append-only, capacity-bounded record of operations. The zero
// value is not usable; construct with New.
//
// All methods are safe for concurrent use.
type Log[T any] struct {
	mu       sync.Mutex
	capacity int
	entries  []T
}

// New creates a log bounded to the given capacity. Zero or negative values
// fall back to DefaultCapacity.
func New[T any](capacity int) *Log[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log[T]{capacity: capacity}
}

// Append records an entry, evicting the oldest entries first once the log
// exceeds its capacity. Recording and eviction happen as one step; no reader
// can observe the log above capacity.
func (l *Log[T]) Append(entry T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	l.trim()
}

// Items returns a copy of the retained entries, oldest first.
func (l *Log[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.entries...)
}

// Last returns the most recent entry, or false when the log is empty.
func (l *Log[T]) Last() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		var zero T
		return zero, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of retained entries.
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cap returns the current capacity.
func (l *Log[T]) Cap() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// SetCapacity changes the entry limit. Zero or negative values fall back to
// DefaultCapacity. Lowering the limit below the current length trims the
// oldest entries immediately rather than waiting for the next append.
func (l *Log[T]) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.capacity = capacity
	l.trim()
}

// Reset discards every retained entry. The capacity is unchanged.
func (l *Log[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// trim drops the oldest entries until the log fits its capacity. The caller
// must hold the lock.
func (l *Log[T]) trim() {
	if len(l.entries) <= l.capacity {
		return
	}
	keep := make([]T, l.capacity)
	copy(keep, l.entries[len(l.entries)-l.capacity:])
	l.entries = keep
}
