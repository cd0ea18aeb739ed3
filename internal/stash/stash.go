package stash

import (
	"fmt"
	"unsafe"
)

// Handle refers to an item stored in a Stash. Handles stay valid until the
// item they refer to is removed; the zero Handle is the invalid sentinel.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether this handle was ever issued by a Stash. It does not
// check whether the item has since been removed; Get does that.
func (h Handle) Valid() bool {
	return h.gen != 0
}

func (h Handle) String() string {
	if !h.Valid() {
		return "stash.Handle(invalid)"
	}
	return fmt.Sprintf("stash.Handle(%d/%d)", h.index, h.gen)
}

type entry[T any] struct {
	item     T
	gen      uint32
	occupied bool
}

// Stash is an in-memory object store that hands out stable handles for
// inserted items. Removed slots are recycled for later adds; a generation
// counter per slot makes stale handles detectable. Callers never index into
// the store directly, only through handles.
//
// A Stash is not safe for concurrent use.
type Stash[T any] struct {
	entries []entry[T]
	free    []uint32
	count   int
}

// New creates an empty stash.
func New[T any]() *Stash[T] {
	return &Stash[T]{}
}

// Add stores a copy of item and returns a handle to it.
// Amortized constant time.
func (s *Stash[T]) Add(item T) Handle {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		e := &s.entries[idx]
		e.item = item
		e.occupied = true
	} else {
		s.entries = append(s.entries, entry[T]{item: item, gen: 1, occupied: true})
		idx = uint32(len(s.entries) - 1)
	}
	s.count++
	return Handle{index: idx, gen: s.entries[idx].gen}
}

// Get returns a pointer to the stored item. The pointer stays valid until
// the item is removed. Panics if the handle is invalid or stale.
// Constant time.
func (s *Stash[T]) Get(h Handle) *T {
	e := s.lookup(h)
	return &e.item
}

// Remove deletes the item the handle refers to and invalidates the handle.
// All other valid handles are unaffected. Panics if the handle is invalid
// or stale.
func (s *Stash[T]) Remove(h Handle) {
	e := s.lookup(h)
	var zero T
	e.item = zero
	e.occupied = false
	e.gen++
	s.free = append(s.free, h.index)
	s.count--
}

// Count returns the number of items currently stored.
func (s *Stash[T]) Count() int {
	return s.count
}

// Size returns the number of slots ever allocated, including recycled ones.
func (s *Stash[T]) Size() int {
	return len(s.entries)
}

// UsedMemory returns an estimate of the memory held by the stash itself,
// not counting heap data reachable from stored items. Used for debugging.
func (s *Stash[T]) UsedMemory() int {
	var e entry[T]
	return cap(s.entries)*int(unsafe.Sizeof(e)) +
		cap(s.free)*4 +
		int(unsafe.Sizeof(*s))
}

func (s *Stash[T]) lookup(h Handle) *entry[T] {
	if !h.Valid() || int(h.index) >= len(s.entries) {
		panic(fmt.Sprintf("stash: access through invalid handle %s", h))
	}
	e := &s.entries[h.index]
	if !e.occupied || e.gen != h.gen {
		panic(fmt.Sprintf("stash: access through stale handle %s", h))
	}
	return e
}
