package searcher

// Scratch is the working memory of one search. It is NOT thread-safe and is
// owned by a single query between Pool.Get and Pool.Put.
type Scratch struct {
	// Visited tracks slots whose distance has been computed.
	Visited *VisitedSet

	// Frontier is the bounded search list.
	Frontier *Frontier

	// Results collects filter-passing candidates when the frontier itself
	// cannot serve as the result set.
	Results *Results

	// Expanded records every expanded candidate in expansion order. During
	// construction it is the pruning candidate pool.
	Expanded []Candidate

	// Neighbors holds a copy of the neighbor list being expanded.
	Neighbors []Slot

	// Pool is a reusable buffer for building prune candidate sets.
	Pool []Candidate

	// Hops counts expansions, Comparisons counts distance evaluations.
	Hops        int
	Comparisons int
}

// NewScratch creates a scratch sized for a graph of n slots and search lists
// of l candidates.
func NewScratch(n, l int) *Scratch {
	return &Scratch{
		Visited:   NewVisitedSet(n),
		Frontier:  NewFrontier(l),
		Results:   NewResults(l),
		Expanded:  make([]Candidate, 0, 2*l),
		Neighbors: make([]Slot, 0, 64),
		Pool:      make([]Candidate, 0, 2*l),
	}
}

// Reset clears the scratch for a search list of l candidates.
func (s *Scratch) Reset(l int) {
	s.Visited.Reset()
	s.Frontier.Reset(l)
	s.Results.Reset(l)
	s.Expanded = s.Expanded[:0]
	s.Neighbors = s.Neighbors[:0]
	s.Pool = s.Pool[:0]
	s.Hops = 0
	s.Comparisons = 0
}

// ResetSearch prepares for another traversal with the same scratch while
// keeping Pool, so candidates of several searches can be collected.
func (s *Scratch) ResetSearch(l int) {
	s.Visited.Reset()
	s.Frontier.Reset(l)
	s.Results.Reset(l)
	s.Expanded = s.Expanded[:0]
}
