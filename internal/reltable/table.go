package reltable

import (
	"fmt"
	"unsafe"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osm-assembler-go/internal/stash"
)

// slot pairs a stash handle with the number of members the relation is
// still waiting on. A removed slot keeps its position as a tombstone
// (invalid handle, zero counter) so positions cached elsewhere stay stable.
type slot struct {
	handle  stash.Handle
	pending uint32
}

// Table tracks relations until all of the members they are waiting on have
// been seen. The relation payloads live in a caller-owned stash; the table
// keeps one slot per relation ever added, in a dense append-only sequence.
// Positions are assigned sequentially from 0 and are never reused.
//
// All access to a stored relation goes through a Ref, obtained from Add or
// Get. A Ref's position is a compact substitute for the Ref itself and can
// be stored cheaply in external indexes (see the members package).
//
// A Table is not safe for concurrent use; an assembly pass owns its table.
type Table struct {
	stash *stash.Stash[osm.Relation]
	slots []slot
}

// New creates a relation table backed by the given stash. The stash must
// outlive the table.
func New(st *stash.Stash[osm.Relation]) *Table {
	return &Table{stash: st}
}

// Add copies the relation into the stash and appends a slot for it with a
// pending-member count of zero. Returns a Ref bound to the new position.
// Amortized constant time.
func (t *Table) Add(rel *osm.Relation) Ref {
	h := t.stash.Add(*rel)
	t.slots = append(t.slots, slot{handle: h})
	return Ref{table: t, pos: len(t.slots) - 1}
}

// Get returns a Ref bound to the given position. Panics if the position is
// out of range. The returned Ref may point at a tombstoned slot; callers
// that hold possibly-stale positions must not dereference or mutate such a
// Ref (iterate with ForEachRelation to see only live slots).
func (t *Table) Get(pos int) Ref {
	if pos < 0 || pos >= len(t.slots) {
		panic(fmt.Sprintf("reltable: position %d out of range [0,%d)", pos, len(t.slots)))
	}
	return Ref{table: t, pos: pos}
}

// Size returns the number of slots, including tombstones. It never
// decreases and equals the total number of Add calls.
func (t *Table) Size() int {
	return len(t.slots)
}

// CountRelations returns the number of live (not removed) relations.
// Linear in Size().
func (t *Table) CountRelations() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].handle.Valid() {
			n++
		}
	}
	return n
}

// ForEachRelation calls fn once for every live relation, in ascending
// position order. fn may remove the relation it was called with; removing
// or adding other slots during iteration is unsupported.
func (t *Table) ForEachRelation(fn func(Ref)) {
	for pos := 0; pos < len(t.slots); pos++ {
		if t.slots[pos].handle.Valid() {
			fn(Ref{table: t, pos: pos})
		}
	}
}

// UsedMemory returns an estimate of the memory held by the slot array.
// Stash memory is not included. Constant time.
func (t *Table) UsedMemory() int {
	var s slot
	return cap(t.slots)*int(unsafe.Sizeof(s)) + int(unsafe.Sizeof(*t))
}

// remove tombstones the slot and releases the stashed relation. Reachable
// only through Ref.Remove.
func (t *Table) remove(pos int) {
	s := &t.slots[pos]
	if !s.handle.Valid() {
		panic(fmt.Sprintf("reltable: remove of already removed relation at position %d", pos))
	}
	t.stash.Remove(s.handle)
	*s = slot{}
}
