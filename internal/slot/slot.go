// Package slot provides a single-element buffer shared between an
// asynchronous producer and a polling consumer.
package slot

import "sync"

// Slot holds at most one value. Writers never block.
type Slot[T any] struct {
	mu       sync.Mutex
	value    T
	occupied bool
}

// TrySet stores v if the slot is empty and reports whether it did.
func (s *Slot[T]) TrySet(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occupied {
		return false
	}
	s.value = v
	s.occupied = true
	return true
}

// TakeIfPresent removes and returns the held value, leaving the slot empty.
func (s *Slot[T]) TakeIfPresent() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if !s.occupied {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.occupied = false
	return v, true
}

// Occupied reports whether a value is waiting.
func (s *Slot[T]) Occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied
}
