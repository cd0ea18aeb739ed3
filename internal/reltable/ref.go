package reltable

import (
	"fmt"

	"github.com/paulmach/osm"
)

// Ref is a capability for one slot in a Table: it can dereference the
// stored relation, adjust the pending-member counter, and remove the slot.
// A Ref is two words, cheap to copy, and owns nothing; any number of Refs
// to the same position may coexist.
//
// After Remove has been called on a position, using any Ref bound to it is
// a programming error and panics. A Ref must not outlive its table.
type Ref struct {
	table *Table
	pos   int
}

// Pos returns the stable position of the slot. Positions are smaller than
// Refs and survive unrelated removals, so external indexes store them
// instead of Refs and turn them back via Table.Get.
func (r Ref) Pos() int {
	return r.pos
}

// Table returns the table this Ref is bound to.
func (r Ref) Table() *Table {
	return r.table
}

// Relation returns the stored relation. The pointer stays valid until the
// slot is removed. Panics if the slot has been removed.
func (r Ref) Relation() *osm.Relation {
	return r.table.stash.Get(r.live().handle)
}

// SetMembers sets the number of members this relation is waiting on. It is
// called once, right after Add, with the domain-determined count of members
// of interest. Panics if the slot has been removed.
func (r Ref) SetMembers(n int) {
	if n < 0 {
		panic(fmt.Sprintf("reltable: negative member count %d at position %d", n, r.pos))
	}
	r.live().pending = uint32(n)
}

// IncrementMembers bumps the pending-member counter, for members of
// interest discovered after the initial count was set. Panics if the slot
// has been removed.
func (r Ref) IncrementMembers() {
	r.live().pending++
}

// DecrementMembers records that one awaited member has been seen. Panics if
// the counter is already zero (HasAllMembers must be false) or if the slot
// has been removed.
func (r Ref) DecrementMembers() {
	s := r.live()
	if s.pending == 0 {
		panic(fmt.Sprintf("reltable: decrement below zero at position %d", r.pos))
	}
	s.pending--
}

// HasAllMembers reports whether the relation is complete, i.e. the
// pending-member counter has reached zero. Panics if the slot has been
// removed.
func (r Ref) HasAllMembers() bool {
	return r.live().pending == 0
}

// Remove tombstones the slot and releases the stashed relation. The
// position is skipped by ForEachRelation from now on and is never reused.
// Every Ref bound to this position, including this one, becomes unusable.
func (r Ref) Remove() {
	r.table.remove(r.pos)
}

func (r Ref) live() *slot {
	s := &r.table.slots[r.pos]
	if !s.handle.Valid() {
		panic(fmt.Sprintf("reltable: use of removed relation at position %d", r.pos))
	}
	return s
}
