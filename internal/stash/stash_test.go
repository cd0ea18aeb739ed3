package stash

import "testing"

func TestAddGet(t *testing.T) {
	s := New[string]()

	h1 := s.Add("first")
	h2 := s.Add("second")

	if !h1.Valid() || !h2.Valid() {
		t.Fatal("issued handles must be valid")
	}
	if h1 == h2 {
		t.Fatal("distinct items must get distinct handles")
	}
	if got := *s.Get(h1); got != "first" {
		t.Errorf("Get(h1) = %q, want %q", got, "first")
	}
	if got := *s.Get(h2); got != "second" {
		t.Errorf("Get(h2) = %q, want %q", got, "second")
	}
	if s.Count() != 2 {
		t.Errorf("count = %d, want 2", s.Count())
	}
}

func TestGetReturnsMutablePointer(t *testing.T) {
	s := New[int]()
	h := s.Add(1)

	*s.Get(h) = 99
	if got := *s.Get(h); got != 99 {
		t.Errorf("mutation through Get pointer lost, got %d", got)
	}
}

func TestRemoveRecyclesSlots(t *testing.T) {
	s := New[int]()

	h1 := s.Add(10)
	h2 := s.Add(20)
	s.Remove(h1)

	if s.Count() != 1 {
		t.Errorf("count after remove = %d, want 1", s.Count())
	}
	if got := *s.Get(h2); got != 20 {
		t.Errorf("unrelated handle affected by remove, got %d", got)
	}

	// The freed slot is reused, but the old handle must not alias it.
	h3 := s.Add(30)
	if s.Size() != 2 {
		t.Errorf("size = %d, want 2 (slot recycled)", s.Size())
	}
	if got := *s.Get(h3); got != 30 {
		t.Errorf("Get(h3) = %d, want 30", got)
	}
}

func TestStaleHandlePanics(t *testing.T) {
	s := New[int]()
	h := s.Add(1)
	s.Remove(h)

	assertPanic := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s should panic", name)
			}
		}()
		fn()
	}

	assertPanic("Get on removed handle", func() { s.Get(h) })
	assertPanic("double Remove", func() { s.Remove(h) })
	assertPanic("Get on zero handle", func() { s.Get(Handle{}) })

	// Even after the slot is recycled the old handle stays dead.
	s.Add(2)
	assertPanic("Get on recycled slot via stale handle", func() { s.Get(h) })
}

func TestZeroHandleInvalid(t *testing.T) {
	var h Handle
	if h.Valid() {
		t.Error("zero handle must be invalid")
	}
}

func TestUsedMemoryGrows(t *testing.T) {
	s := New[[16]byte]()
	before := s.UsedMemory()
	for i := 0; i < 1024; i++ {
		s.Add([16]byte{})
	}
	if s.UsedMemory() <= before {
		t.Error("UsedMemory should grow with the entry array")
	}
}
