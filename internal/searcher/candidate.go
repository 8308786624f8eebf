package searcher

// Slot is the dense internal vector handle.
type Slot = uint32

// Candidate is a slot with its distance to the current query.
type Candidate struct {
	Slot     Slot
	Distance float32
}

// Better reports whether a ranks before b: smaller distance first, ties
// broken by ascending slot.
func Better(a, b Candidate) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Slot < b.Slot
}
