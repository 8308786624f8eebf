package searcher

import "github.com/bits-and-blooms/bitset"

// resetDirtyLimit is the dirty-list length above which Reset clears the
// whole bitset instead of the individual bits.
const resetDirtyLimit = 1 << 14

// VisitedSet tracks visited slots using a bitset and a dirty list for fast reset.
type VisitedSet struct {
	bits  *bitset.BitSet
	dirty []Slot
}

// NewVisitedSet creates a visited set sized for capacity slots. It grows on
// demand.
func NewVisitedSet(capacity int) *VisitedSet {
	return &VisitedSet{
		bits:  bitset.New(uint(capacity)),
		dirty: make([]Slot, 0, 128),
	}
}

// Visit marks s and reports whether it was unvisited before.
func (v *VisitedSet) Visit(s Slot) bool {
	if v.bits.Test(uint(s)) {
		return false
	}
	v.bits.Set(uint(s))
	v.dirty = append(v.dirty, s)
	return true
}

// Visited reports whether s has been visited.
func (v *VisitedSet) Visited(s Slot) bool {
	return v.bits.Test(uint(s))
}

// Count returns the number of slots visited since the last Reset.
func (v *VisitedSet) Count() int { return len(v.dirty) }

// Reset clears every slot visited since the last Reset.
func (v *VisitedSet) Reset() {
	if len(v.dirty) > resetDirtyLimit {
		v.bits.ClearAll()
	} else {
		for _, s := range v.dirty {
			v.bits.Clear(uint(s))
		}
	}
	v.dirty = v.dirty[:0]
}
