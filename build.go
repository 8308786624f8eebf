package vamana

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/hupe1980/vamana/internal/graph"
	"github.com/hupe1980/vamana/internal/labels"
	"github.com/hupe1980/vamana/internal/quantization"
	"github.com/hupe1980/vamana/internal/searcher"
	"github.com/hupe1980/vamana/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

const (
	// entryPointSampleSize bounds the postings each label's entry point is
	// chosen from.
	entryPointSampleSize = 100

	// buildChunk is the number of slots one worker processes per task.
	buildChunk = 64
)

// Build connects every staged vector into the graph: random initialization,
// medoid selection, then one pass with alpha 1 and one with the configured
// alpha. With filtering enabled each label also gets an entry point.
//
// The graph's memory is reserved through the resource controller first;
// ErrOutOfMemory is returned before anything is published. A failure while
// processing a slot aborts the build with a *BuildError.
func (ix *Index) Build(ctx context.Context) error {
	start := time.Now()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	n := ix.liveCount()
	err := translateError(ix.build(ctx))

	ix.opts.metricsCollector.RecordBuild(n, time.Since(start), err)
	ix.opts.logger.LogBuild(ctx, n, time.Since(start), err)
	return err
}

func (ix *Index) build(ctx context.Context) error {
	switch {
	case ix.closed:
		return ErrClosed
	case ix.built:
		return ErrAlreadyBuilt
	}

	rc := ix.opts.resources
	if err := rc.AcquireBackground(ctx); err != nil {
		return err
	}
	defer rc.ReleaseBackground()

	n := ix.ids.Cap()
	need := graph.Bytes(n, ix.opts.maxDegree) + int64(n*ix.opts.pqChunks)
	if err := rc.AcquireMemory(need); err != nil {
		return err
	}
	published := false
	defer func() {
		if !published {
			rc.ReleaseMemory(need)
		}
	}()

	live := ix.liveSlots()

	codes, err := ix.trainCodes(ctx, live)
	if err != nil {
		return err
	}

	mem, err := graph.NewMemory(n, ix.opts.maxDegree)
	if err != nil {
		return err
	}

	b := ix.newBuilder(mem, ix.exact, n)
	if err := b.randomInit(ctx, live); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(ix.opts.seed, 1))
	if len(live) > 0 {
		if b.medoid, err = b.central(live, medoidSampleSize, rng); err != nil {
			return err
		}
	}
	if ix.opts.filtered {
		if b.entryPoints, err = b.selectEntryPoints(rng); err != nil {
			return err
		}
	}

	for pass, alpha := range []float32{1, ix.opts.alpha} {
		passStart := time.Now()
		order := slices.Clone(live)
		prng := rand.New(rand.NewPCG(ix.opts.seed, uint64(2+pass)))
		prng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		if err := b.pass(ctx, order, alpha); err != nil {
			return err
		}
		ix.opts.logger.LogBuildPass(ctx, pass+1, alpha, time.Since(passStart))
	}

	ix.graph = mem
	ix.mem = mem
	ix.codes = codes
	ix.medoid = b.medoid
	ix.entryPoints = b.entryPoints
	ix.pool = searcher.NewPool(ix.opts.poolSize, n, ix.opts.searchListSize)
	ix.reserved += need
	ix.built = true
	published = true
	return nil
}

// trainCodes trains the product quantizer on the live vectors and encodes
// them. It returns nil when PQ is disabled or there is nothing to train on.
func (ix *Index) trainCodes(ctx context.Context, live []Slot) (*vectorstore.Codes, error) {
	if ix.opts.pqChunks == 0 || len(live) == 0 {
		return nil, nil
	}

	opts := []quantization.PQOption{
		quantization.WithSeed(ix.opts.seed),
		quantization.WithWorkers(ix.opts.threads),
	}
	if ix.opts.pqSampleSize > 0 {
		opts = append(opts, quantization.WithTrainSampleSize(ix.opts.pqSampleSize))
	}
	pq, err := quantization.NewProductQuantizer(ix.dim, ix.opts.pqChunks, ix.opts.pqCentroids, opts...)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(live))
	for i, s := range live {
		if vectors[i], err = ix.exact.Get(s); err != nil {
			return nil, err
		}
	}
	if err := pq.Train(ctx, vectors); err != nil {
		return nil, err
	}

	codes, err := vectorstore.NewCodes(pq, ix.opts.metric, ix.ids.Cap())
	if err != nil {
		return nil, err
	}
	for i, s := range live {
		if err := codes.Put(s, vectors[i]); err != nil {
			return nil, err
		}
	}
	return codes, nil
}

// builder holds the state shared by the workers of one construction or
// repair.
type builder struct {
	ix       *Index
	mem      *graph.Memory
	store    vectorstore.Store
	labels   *labels.Store
	t        *traverser
	pool     *searcher.Pool
	r        int
	l        int
	threads  int
	seed     uint64
	filtered bool

	medoid      Slot
	entryPoints map[Label]Slot
}

func (ix *Index) newBuilder(mem *graph.Memory, store vectorstore.Store, n int) *builder {
	return &builder{
		ix:    ix,
		mem:   mem,
		store: store,
		labels: ix.labels,
		t: &traverser{
			g:       mem,
			mem:     mem,
			labels:  ix.labels,
			deleted: ix.deleted,
		},
		pool:        searcher.NewPool(ix.opts.threads, n, ix.opts.searchListSize),
		r:           ix.opts.maxDegree,
		l:           ix.opts.searchListSize,
		threads:     ix.opts.threads,
		seed:        ix.opts.seed,
		filtered:    ix.opts.filtered,
		medoid:      ix.medoid,
		entryPoints: ix.entryPoints,
	}
}

// randomInit links every slot to about R/2 random partners with mutual
// edges, giving a roughly R-regular starting graph.
func (b *builder) randomInit(ctx context.Context, live []Slot) error {
	if len(live) < 2 {
		return nil
	}
	target := (min(b.r, len(live)-1) + 1) / 2

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.threads)
	for chunk := range slices.Chunk(live, buildChunk) {
		g.Go(func() error {
			for _, s := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				rng := rand.New(rand.NewPCG(b.seed, math.MaxUint32+uint64(s)))
				for added, tries := 0, 0; added < target && tries < 4*b.r; tries++ {
					t := live[rng.IntN(len(live))]
					if t != s && b.mem.Link(s, t) {
						added++
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// central returns the slot of a sample of slots with the smallest total
// distance to the rest of the sample. Ties go to the lower slot.
func (b *builder) central(slots []Slot, sampleSize int, rng *rand.Rand) (Slot, error) {
	sample := slots
	if len(slots) > sampleSize {
		sample = make([]Slot, sampleSize)
		for i, p := range rng.Perm(len(slots))[:sampleSize] {
			sample[i] = slots[p]
		}
		slices.Sort(sample)
	}

	best, bestSum := sample[0], math.Inf(1)
	for _, a := range sample {
		var sum float64
		for _, c := range sample {
			if a == c {
				continue
			}
			d, err := b.store.Distance(a, c)
			if err != nil {
				return 0, err
			}
			sum += float64(d)
		}
		if sum < bestSum {
			best, bestSum = a, sum
		}
	}
	return best, nil
}

// selectEntryPoints picks a central live slot for every label.
func (b *builder) selectEntryPoints(rng *rand.Rand) (map[Label]Slot, error) {
	eps := make(map[Label]Slot)
	for _, l := range b.labels.Distinct() {
		var slots []Slot
		it := b.labels.Postings(l).Iterator()
		for it.HasNext() {
			if s := it.Next(); b.ix.live(s) {
				slots = append(slots, s)
			}
		}
		if len(slots) == 0 {
			continue
		}
		ep, err := b.central(slots, entryPointSampleSize, rng)
		if err != nil {
			return nil, err
		}
		eps[l] = ep
	}
	return eps, nil
}

// pass processes order with the given alpha on the worker pool.
func (b *builder) pass(ctx context.Context, order []Slot, alpha float32) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.threads)
	for chunk := range slices.Chunk(order, buildChunk) {
		g.Go(func() error {
			sc, err := b.pool.Get(gctx, b.l)
			if err != nil {
				return err
			}
			defer b.pool.Put(sc)

			for _, s := range chunk {
				if err := b.link(gctx, sc, s, alpha); err != nil {
					return &BuildError{Slot: s, Err: err}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// candidates collects the pruning pool of s into sc.Pool: the nodes expanded
// while searching for s (one filtered search per label in filtered mode)
// plus its current neighbors. A label without an entry point, or filtered
// searches that admit nothing, add an unfiltered search from the medoid so
// that s is linked into the graph.
func (b *builder) candidates(ctx context.Context, sc *searcher.Scratch, s Slot) error {
	v, err := b.store.Get(s)
	if err != nil {
		return err
	}
	qd, err := b.store.ForQuery(v)
	if err != nil {
		return err
	}

	sc.Pool = sc.Pool[:0]
	unfiltered := true
	if ls := b.labels.Labels(s); b.filtered && len(ls) > 0 {
		unfiltered = false
		for _, l := range ls {
			start, ok := b.entryPoints[l]
			if !ok {
				start, unfiltered = b.medoid, true
			}
			sc.ResetSearch(b.l)
			if err := b.t.search(ctx, sc, qd, []Slot{start}, labels.Require(l)); err != nil {
				return err
			}
			for _, c := range sc.Expanded {
				if c.Slot != s && b.labels.Matches(c.Slot, l) {
					sc.Pool = append(sc.Pool, c)
				}
			}
		}
		unfiltered = unfiltered || len(sc.Pool) == 0
	}
	if unfiltered {
		sc.ResetSearch(b.l)
		if err := b.t.search(ctx, sc, qd, []Slot{b.medoid}, labels.Filter{}); err != nil {
			return err
		}
		sc.Pool = append(sc.Pool, sc.Expanded...)
	}

	sc.Neighbors = b.mem.AppendNeighbors(sc.Neighbors[:0], s)
	for _, nb := range sc.Neighbors {
		sc.Pool = append(sc.Pool, searcher.Candidate{Slot: nb, Distance: qd.Distance(nb)})
	}
	return nil
}

// link rewires s: search, prune, set neighbors, then add back-edges.
func (b *builder) link(ctx context.Context, sc *searcher.Scratch, s Slot, alpha float32) error {
	if err := b.candidates(ctx, sc, s); err != nil {
		return err
	}
	list, err := b.prune(s, sc.Pool, alpha)
	if err != nil {
		return err
	}
	if err := b.mem.SetNeighbors(s, list); err != nil {
		return err
	}
	return b.backEdges(s, list, alpha)
}

// backEdges adds s to the list of every slot in list, re-pruning lists that
// would overflow R.
func (b *builder) backEdges(s Slot, list []Slot, alpha float32) error {
	for _, nb := range list {
		err := b.mem.Update(nb, func(cur []Slot) ([]Slot, error) {
			if slices.Contains(cur, s) {
				return cur, nil
			}
			if len(cur) < b.r {
				return append(slices.Clip(cur), s), nil
			}

			cands := make([]searcher.Candidate, 0, len(cur)+1)
			for _, c := range append(slices.Clip(cur), s) {
				d, err := b.store.Distance(nb, c)
				if err != nil {
					return nil, err
				}
				cands = append(cands, searcher.Candidate{Slot: c, Distance: d})
			}
			return b.prune(nb, cands, alpha)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// prune selects at most R neighbors for s from cands, whose distances are
// measured from s. Candidates are taken nearest first; a selected p
// eliminates every remaining c with alpha*d(p,c) <= d(s,c). In filtered mode
// p only eliminates c when p carries every label c shares with s.
// Deleted slots and s itself are never selected. cands is reordered.
func (b *builder) prune(s Slot, cands []searcher.Candidate, alpha float32) ([]Slot, error) {
	slices.SortFunc(cands, compareCandidates)
	cands = slices.CompactFunc(cands, func(a, c searcher.Candidate) bool { return a.Slot == c.Slot })

	out := make([]Slot, 0, b.r)
	pruned := make([]bool, len(cands))
	for i, p := range cands {
		if len(out) >= b.r {
			break
		}
		if pruned[i] || p.Slot == s || b.ix.deleted.Test(uint(p.Slot)) {
			continue
		}
		out = append(out, p.Slot)

		for j := i + 1; j < len(cands); j++ {
			if pruned[j] {
				continue
			}
			c := cands[j]
			d, err := b.store.Distance(p.Slot, c.Slot)
			if err != nil {
				return nil, err
			}
			if alpha*d <= c.Distance && b.covers(s, p.Slot, c.Slot) {
				pruned[j] = true
			}
		}
	}
	return out, nil
}

// covers reports whether p may stand in for c as a neighbor of s.
func (b *builder) covers(s, p, c Slot) bool {
	if !b.filtered {
		return true
	}
	ls, lp := b.labels.Labels(s), b.labels.Labels(p)
	for _, l := range b.labels.Labels(c) {
		if ls.Contains(l) && !lp.Contains(l) {
			return false
		}
	}
	return true
}
