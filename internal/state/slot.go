package state

import "sync"

// Slot holds only the most recent value written to it.
// Writes always overwrite; readers never block. Intermediate values may be skipped.
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	fresh   bool
	written bool
	changed chan struct{}
}

// NewSlot creates an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{changed: make(chan struct{}, 1)}
}

// Set replaces the held value and signals Changed.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.fresh = true
	s.written = true
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Take returns the value if it has not been taken since the last Set.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fresh {
		var zero T
		return zero, false
	}
	s.fresh = false
	return s.value, true
}

// Latest returns the last value ever set without consuming it.
func (s *Slot[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.written
}

// Changed fires at least once after one or more Sets.
func (s *Slot[T]) Changed() <-chan struct{} {
	return s.changed
}
