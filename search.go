package vamana

import (
	"context"
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vamana/internal/graph"
	"github.com/hupe1980/vamana/internal/labels"
	"github.com/hupe1980/vamana/internal/searcher"
	"github.com/hupe1980/vamana/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

// Result is one neighbor returned by a search.
type Result struct {
	ID       uint64
	Distance float32
}

// SearchStats reports the work done by one search.
type SearchStats struct {
	// Hops is the number of expanded nodes.
	Hops int
	// Comparisons is the number of distance evaluations.
	Comparisons int
	// Latency is the wall time of the search, including waiting for a
	// scratch buffer.
	Latency time.Duration
}

type searchOptions struct {
	l      int
	filter labels.Filter
	stats  *SearchStats
}

// SearchOption configures a single search.
type SearchOption func(*searchOptions)

// WithL overrides the search list size. Values below k are raised to k.
func WithL(l int) SearchOption {
	return func(o *searchOptions) {
		o.l = l
	}
}

// WithLabel restricts results to vectors carrying label (or the universal
// label).
func WithLabel(label Label) SearchOption {
	return func(o *searchOptions) {
		o.filter = labels.Require(label)
	}
}

// WithLabels restricts results to vectors carrying any of the given labels
// (or the universal label).
func WithLabels(ls ...Label) SearchOption {
	return func(o *searchOptions) {
		o.filter = labels.AnyOf(ls...)
	}
}

// WithStats records hop and comparison counts and the latency of the
// search into s. SearchBatch ignores it; use Query.Stats instead.
func WithStats(s *SearchStats) SearchOption {
	return func(o *searchOptions) {
		o.stats = s
	}
}

// traverser walks one graph. With mem set, neighbor lists are copied under
// their slot lock so the walk can run while the graph is being rewired.
type traverser struct {
	g       graph.Store
	mem     *graph.Memory
	labels  *labels.Store
	deleted *bitset.BitSet
}

func (t *traverser) admit(s Slot, f labels.Filter) bool {
	return !t.deleted.Test(uint(s)) && t.labels.Match(s, f)
}

func (t *traverser) visit(sc *searcher.Scratch, qd vectorstore.QueryDistance, s Slot, f labels.Filter) {
	if !sc.Visited.Visit(s) {
		return
	}
	c := searcher.Candidate{Slot: s, Distance: qd.Distance(s)}
	sc.Comparisons++
	sc.Frontier.Insert(c)
	if t.admit(s, f) {
		sc.Results.Push(c)
	}
}

// search is the best-first traversal shared by queries and construction.
//
// Every reachable node may enter the frontier, but only nodes passing f and
// not deleted are admitted to sc.Results. The walk stops when the frontier
// has no unexpanded member or its nearest one is farther than the worst
// kept result. Expanded nodes are recorded in sc.Expanded.
func (t *traverser) search(ctx context.Context, sc *searcher.Scratch, qd vectorstore.QueryDistance, starts []Slot, f labels.Filter) error {
	for _, s := range starts {
		t.visit(sc, qd, s, f)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c, ok := sc.Frontier.Next()
		if !ok {
			return nil
		}
		if sc.Results.Full() {
			if w, _ := sc.Results.Worst(); c.Distance > w.Distance {
				return nil
			}
		}

		sc.Expanded = append(sc.Expanded, c)
		sc.Hops++

		var nbrs []Slot
		if t.mem != nil {
			sc.Neighbors = t.mem.AppendNeighbors(sc.Neighbors[:0], c.Slot)
			nbrs = sc.Neighbors
		} else {
			nbrs = t.g.Neighbors(c.Slot)
		}
		for _, nb := range nbrs {
			t.visit(sc, qd, nb, f)
		}
	}
}

func (ix *Index) traverser() *traverser {
	return &traverser{g: ix.graph, labels: ix.labels, deleted: ix.deleted}
}

// startPoints returns the medoid followed by the entry points of the
// filter's labels.
func (ix *Index) startPoints(f labels.Filter) []Slot {
	starts := []Slot{ix.medoid}
	for _, l := range f.Labels() {
		if ep, ok := ix.entryPoints[l]; ok && !slices.Contains(starts, ep) {
			starts = append(starts, ep)
		}
	}
	return starts
}

// Search returns up to k nearest neighbors of q in ascending distance.
//
// Example:
//
//	res, _ := idx.Search(ctx, q, 10, vamana.WithL(50), vamana.WithLabel(7))
func (ix *Index) Search(ctx context.Context, q []float32, k int, opts ...SearchOption) ([]Result, error) {
	return ix.run(ctx, q, k, applySearchOptions(opts))
}

func applySearchOptions(opts []SearchOption) searchOptions {
	var so searchOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&so)
		}
	}
	return so
}

// run executes one search and records its metrics.
func (ix *Index) run(ctx context.Context, q []float32, k int, so searchOptions) ([]Result, error) {
	start := time.Now()

	res, err := ix.search(ctx, q, k, so)
	err = translateError(err)

	d := time.Since(start)
	if so.stats != nil {
		so.stats.Latency = d
	}
	ix.opts.metricsCollector.RecordSearch(k, d, err)
	ix.opts.logger.LogSearch(ctx, k, len(res), err)
	return res, err
}

// FilteredSearch is Search restricted to vectors carrying label.
func (ix *Index) FilteredSearch(ctx context.Context, q []float32, k int, label Label, opts ...SearchOption) ([]Result, error) {
	return ix.Search(ctx, q, k, append(slices.Clip(opts), WithLabel(label))...)
}

func (ix *Index) search(ctx context.Context, q []float32, k int, so searchOptions) ([]Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := ix.searchable(); err != nil {
		return nil, err
	}
	if len(q) != ix.dim {
		return nil, &ErrDimensionMismatch{Expected: ix.dim, Actual: len(q)}
	}
	if ix.liveCount() == 0 {
		return []Result{}, nil
	}

	l := so.l
	if l <= 0 {
		l = ix.opts.searchListSize
	}
	l = max(l, k)

	qd, err := ix.traversal().ForQuery(q)
	if err != nil {
		return nil, err
	}

	sc, err := ix.pool.Get(ctx, l)
	if err != nil {
		return nil, err
	}
	defer ix.pool.Put(sc)

	if err := ix.traverser().search(ctx, sc, qd, ix.startPoints(so.filter), so.filter); err != nil {
		return nil, err
	}
	if so.stats != nil {
		so.stats.Hops = sc.Hops
		so.stats.Comparisons = sc.Comparisons
	}

	cands := sc.Results.Drain(sc.Pool[:0])
	if ix.codes != nil && ix.exact != nil {
		if cands, err = ix.rerank(q, cands); err != nil {
			return nil, err
		}
	}

	n := min(k, len(cands))
	out := make([]Result, n)
	for i, c := range cands[:n] {
		id, err := ix.ids.External(c.Slot)
		if err != nil {
			return nil, err
		}
		out[i] = Result{ID: id, Distance: c.Distance}
	}
	return out, nil
}

// rerank replaces compressed distances by full-precision ones and re-sorts.
func (ix *Index) rerank(q []float32, cands []searcher.Candidate) ([]searcher.Candidate, error) {
	qd, err := ix.exact.ForQuery(q)
	if err != nil {
		return nil, err
	}
	for i := range cands {
		cands[i].Distance = qd.Distance(cands[i].Slot)
	}
	slices.SortFunc(cands, compareCandidates)
	return cands, nil
}

func compareCandidates(a, b searcher.Candidate) int {
	switch {
	case searcher.Better(a, b):
		return -1
	case searcher.Better(b, a):
		return 1
	}
	return 0
}

// Query is one entry of a batch search.
type Query struct {
	Vector []float32
	// Labels restricts the query to vectors carrying any of them. Empty
	// means unfiltered.
	Labels []Label
	// Stats, when set, receives the work done by this query.
	Stats *SearchStats
}

// SearchBatch runs queries in parallel, bounded by the configured thread
// count, and returns their results in order. Per-query label lists take
// precedence over label options in opts. WithStats is ignored; statistics
// are reported per query through Query.Stats.
func (ix *Index) SearchBatch(ctx context.Context, queries []Query, k int, opts ...SearchOption) ([][]Result, error) {
	out := make([][]Result, len(queries))
	base := applySearchOptions(opts)
	base.stats = nil

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.threads)
	for i, q := range queries {
		g.Go(func() error {
			so := base
			so.stats = q.Stats
			if len(q.Labels) > 0 {
				so.filter = labels.AnyOf(q.Labels...)
			}
			res, err := ix.run(gctx, q.Vector, k, so)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
