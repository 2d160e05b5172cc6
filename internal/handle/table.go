// Package handle implements generational arenas. A slot index paired with a
// generation counter lets stale references be detected after the slot is
// recycled.
package handle

import (
	"errors"
	"sync"
)

// ErrFull is returned by Insert when the table reached its limit.
var ErrFull = errors.New("handle: table full")

// Ref addresses one slot of a Table at a specific generation. The zero Ref is
// never issued.
type Ref struct {
	Slot uint32
	Gen  uint32
}

// IsZero reports whether r is the unissued reference.
func (r Ref) IsZero() bool {
	return r.Gen == 0
}

type slot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// Table stores values of type T behind generational references. It is safe
// for concurrent use.
type Table[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
	limit int
	count int
}

// NewTable returns a table that holds at most limit live values. A limit of
// zero or less means unbounded.
func NewTable[T any](limit int) *Table[T] {
	return &Table[T]{limit: limit}
}

// Insert stores v and returns its reference.
func (t *Table[T]) Insert(v T) (Ref, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit > 0 && t.count >= t.limit {
		return Ref{}, ErrFull
	}
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot[T]{})
		idx = uint32(len(t.slots) - 1)
	}
	s := &t.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	s.value = v
	t.count++
	return Ref{Slot: idx, Gen: s.gen}, nil
}

// Lookup returns the value stored under r when r is still current.
func (t *Table[T]) Lookup(r Ref) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero T
	if r.IsZero() || int(r.Slot) >= len(t.slots) {
		return zero, false
	}
	s := t.slots[r.Slot]
	if !s.live || s.gen != r.Gen {
		return zero, false
	}
	return s.value, true
}

// Remove invalidates r and returns the value it referenced.
func (t *Table[T]) Remove(r Ref) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	if r.IsZero() || int(r.Slot) >= len(t.slots) {
		return zero, false
	}
	s := &t.slots[r.Slot]
	if !s.live || s.gen != r.Gen {
		return zero, false
	}
	v := s.value
	s.live = false
	s.value = zero
	t.free = append(t.free, r.Slot)
	t.count--
	return v, true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Drain removes every live value and returns them in slot order.
func (t *Table[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	out := make([]T, 0, t.count)
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		out = append(out, s.value)
		s.live = false
		s.value = zero
		t.free = append(t.free, uint32(i))
	}
	t.count = 0
	return out
}
