package searcher

// Frontier is the bounded search list of a greedy traversal: at most L
// candidates kept in ascending (distance, slot) order, each flagged once it
// has been expanded.
type Frontier struct {
	items    []Candidate
	expanded []bool
	capacity int
	cursor   int // no unexpanded item sits before cursor
}

// NewFrontier creates a frontier holding up to capacity candidates.
func NewFrontier(capacity int) *Frontier {
	f := &Frontier{}
	f.Reset(capacity)
	return f
}

// Reset empties the frontier and sets its capacity.
func (f *Frontier) Reset(capacity int) {
	if cap(f.items) < capacity {
		f.items = make([]Candidate, 0, capacity)
		f.expanded = make([]bool, 0, capacity)
	}
	f.items = f.items[:0]
	f.expanded = f.expanded[:0]
	f.capacity = capacity
	f.cursor = 0
}

// Len returns the number of kept candidates.
func (f *Frontier) Len() int { return len(f.items) }

// Cap returns L.
func (f *Frontier) Cap() int { return f.capacity }

// Full reports whether the frontier holds L candidates.
func (f *Frontier) Full() bool { return len(f.items) >= f.capacity }

// Worst returns the farthest kept candidate.
func (f *Frontier) Worst() (Candidate, bool) {
	if len(f.items) == 0 {
		return Candidate{}, false
	}
	return f.items[len(f.items)-1], true
}

// Insert adds c unless the frontier is full and c ranks after every kept
// candidate, evicting the farthest when over capacity. The caller must not
// insert a slot twice. It reports whether c was kept.
func (f *Frontier) Insert(c Candidate) bool {
	if f.capacity <= 0 {
		return false
	}
	n := len(f.items)
	if n >= f.capacity && !Better(c, f.items[n-1]) {
		return false
	}

	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if Better(f.items[mid], c) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if n < f.capacity {
		f.items = append(f.items, Candidate{})
		f.expanded = append(f.expanded, false)
	}
	copy(f.items[lo+1:], f.items[lo:len(f.items)-1])
	copy(f.expanded[lo+1:], f.expanded[lo:len(f.expanded)-1])
	f.items[lo] = c
	f.expanded[lo] = false

	if lo < f.cursor {
		f.cursor = lo
	}
	return true
}

// Next marks and returns the nearest unexpanded candidate.
func (f *Frontier) Next() (Candidate, bool) {
	for f.cursor < len(f.items) && f.expanded[f.cursor] {
		f.cursor++
	}
	if f.cursor >= len(f.items) {
		return Candidate{}, false
	}
	c := f.items[f.cursor]
	f.expanded[f.cursor] = true
	f.cursor++
	return c, true
}

