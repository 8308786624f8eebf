package searcher

const heapArity = 4

// Results keeps the best candidates seen so far, up to a capacity. The heap
// is ordered worst first so the eviction candidate is always at the top.
type Results struct {
	items    []Candidate
	capacity int
}

// NewResults creates a result heap bounded to capacity.
func NewResults(capacity int) *Results {
	return &Results{items: make([]Candidate, 0, capacity), capacity: capacity}
}

// Reset clears the heap for reuse and sets its capacity.
func (h *Results) Reset(capacity int) {
	h.items = h.items[:0]
	h.capacity = capacity
}

func (h *Results) Len() int { return len(h.items) }

// Full reports whether the heap holds capacity candidates.
func (h *Results) Full() bool { return len(h.items) >= h.capacity }

// Worst returns the candidate that would be evicted next.
func (h *Results) Worst() (Candidate, bool) {
	if len(h.items) == 0 {
		return Candidate{}, false
	}
	return h.items[0], true
}

// Push offers c. When full, c replaces the worst kept candidate only if it
// ranks better. It reports whether c was kept.
func (h *Results) Push(c Candidate) bool {
	if h.capacity <= 0 {
		return false
	}
	if len(h.items) < h.capacity {
		h.items = append(h.items, c)
		h.up(len(h.items) - 1)
		return true
	}
	if !Better(c, h.items[0]) {
		return false
	}
	h.items[0] = c
	h.down(0, len(h.items))
	return true
}

// Pop removes and returns the worst candidate.
// Panics if the heap is empty - caller should check Len() > 0.
func (h *Results) Pop() Candidate {
	n := len(h.items) - 1
	h.items[0], h.items[n] = h.items[n], h.items[0]
	h.down(0, n)
	x := h.items[n]
	h.items = h.items[:n]
	return x
}

// Drain empties the heap into dst in ascending order.
func (h *Results) Drain(dst []Candidate) []Candidate {
	n := len(h.items)
	start := len(dst)
	dst = append(dst, make([]Candidate, n)...)
	for i := n - 1; i >= 0; i-- {
		dst[start+i] = h.Pop()
	}
	return dst
}

// worse is the heap order: a sits above b when a ranks after b.
func worse(a, b Candidate) bool { return Better(b, a) }

func (h *Results) up(j int) {
	item := h.items[j]
	for j > 0 {
		i := (j - 1) / heapArity
		if !worse(item, h.items[i]) {
			break
		}
		h.items[j] = h.items[i]
		j = i
	}
	h.items[j] = item
}

func (h *Results) down(i0, n int) {
	i := i0
	item := h.items[i]
	for {
		first := heapArity*i + 1
		if first >= n {
			break
		}
		best := first
		last := min(first+heapArity, n)
		for c := first + 1; c < last; c++ {
			if worse(h.items[c], h.items[best]) {
				best = c
			}
		}
		if !worse(h.items[best], item) {
			break
		}
		h.items[i] = h.items[best]
		i = best
	}
	h.items[i] = item
}
