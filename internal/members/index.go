package members

import (
	"unsafe"

	"github.com/paulmach/osm"
)

// Index maps member features to the relation-table positions of relations
// waiting on them. Positions are stored instead of reltable.Refs because
// they are a quarter of the size and survive unrelated removals; callers
// turn them back into Refs with Table.Get when a member shows up.
//
// A relation that lists the same member twice is registered twice, so each
// occurrence decrements the pending counter once.
//
// Not safe for concurrent use; owned by a single assembly pass.
type Index struct {
	waiting map[osm.FeatureID][]int32
}

// New creates an empty members index.
func New() *Index {
	return &Index{waiting: make(map[osm.FeatureID][]int32)}
}

// Want registers that the relation at pos is waiting on fid.
func (i *Index) Want(fid osm.FeatureID, pos int) {
	i.waiting[fid] = append(i.waiting[fid], int32(pos))
}

// Seen returns the positions waiting on fid and drops the entry. Returns
// nil if nothing was waiting. Each position appears once per registered
// occurrence of the member.
func (i *Index) Seen(fid osm.FeatureID) []int {
	waiters, ok := i.waiting[fid]
	if !ok {
		return nil
	}
	delete(i.waiting, fid)
	positions := make([]int, len(waiters))
	for n, pos := range waiters {
		positions[n] = int(pos)
	}
	return positions
}

// Pending returns the number of distinct features still being waited on.
func (i *Index) Pending() int {
	return len(i.waiting)
}

// UsedMemory returns a rough estimate of the index memory. Map bucket
// overhead is not counted. Used for debugging.
func (i *Index) UsedMemory() int {
	total := int(unsafe.Sizeof(*i))
	for _, waiters := range i.waiting {
		total += 8 + cap(waiters)*4
	}
	return total
}
