package state

import (
	"sync"
	"testing"
)

func TestSlot_TakeOnlyFreshValues(t *testing.T) {
	s := NewSlot[int]()

	if _, ok := s.Take(); ok {
		t.Fatal("empty slot should have nothing to take")
	}

	s.Set(1)
	s.Set(2)
	v, ok := s.Take()
	if !ok || v != 2 {
		t.Fatalf("Take() = %d, %v; want 2, true", v, ok)
	}
	if _, ok := s.Take(); ok {
		t.Error("value should only be taken once")
	}

	latest, ok := s.Latest()
	if !ok || latest != 2 {
		t.Errorf("Latest() = %d, %v; want 2, true", latest, ok)
	}
}

func TestSlot_ChangedCoalesces(t *testing.T) {
	s := NewSlot[string]()
	s.Set("a")
	s.Set("b")
	s.Set("c")

	select {
	case <-s.Changed():
	default:
		t.Fatal("Changed should fire after Set")
	}
	select {
	case <-s.Changed():
		t.Error("multiple Sets should coalesce into one signal")
	default:
	}
}

func TestSlot_ConcurrentWriters(t *testing.T) {
	s := NewSlot[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s.Set(v)
			s.Take()
		}(i)
	}
	wg.Wait()

	if _, ok := s.Latest(); !ok {
		t.Error("Latest should report a written value")
	}
}
