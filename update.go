package vamana

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/hupe1980/vamana/internal/graph"
	"github.com/hupe1980/vamana/internal/searcher"
	"golang.org/x/sync/errgroup"
)

// Insert adds one vector to a built index: it is connected with the same
// search, prune and back-edge steps as a build, using the configured alpha.
// The vector is searchable once Insert returns.
func (ix *Index) Insert(ctx context.Context, id uint64, v []float32, ls ...Label) error {
	start := time.Now()
	err := translateError(ix.insert(ctx, id, v, ls))

	ix.opts.metricsCollector.RecordInsert(time.Since(start), err)
	ix.opts.logger.LogInsert(ctx, id, err)
	return err
}

func (ix *Index) insert(ctx context.Context, id uint64, v []float32, ls []Label) error {
	if len(v) != ix.dim {
		return &ErrDimensionMismatch{Expected: ix.dim, Actual: len(v)}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.writable(); err != nil {
		return err
	}

	empty := ix.liveCount() == 0
	s, err := ix.put(id, v, ls)
	if err != nil {
		return err
	}
	if err := ix.ensureGraph(ix.ids.Cap()); err != nil {
		ix.unput(s)
		return err
	}

	if !empty {
		sc, err := ix.pool.Get(ctx, ix.opts.searchListSize)
		if err != nil {
			ix.unput(s)
			return err
		}
		defer ix.pool.Put(sc)

		b := ix.newBuilder(ix.mem, ix.construction(), ix.mem.Len())
		b.pool = ix.pool
		if err := b.link(ctx, sc, s, ix.opts.alpha); err != nil {
			_ = ix.mem.SetNeighbors(s, nil)
			ix.unput(s)
			return err
		}
	} else {
		ix.medoid = s
	}

	if ix.opts.filtered {
		for _, l := range ls {
			if ep, ok := ix.entryPoints[l]; !ok || !ix.live(ep) {
				ix.entryPoints[l] = s
			}
		}
	}
	return nil
}

// unput undoes put for a slot that could not be connected.
func (ix *Index) unput(s Slot) {
	ix.labels.Clear(s)
	_ = ix.ids.Release(s)
}

// ensureGraph grows the graph to hold n slots. Growth is amortized and
// reserved through the resource controller.
func (ix *Index) ensureGraph(n int) error {
	cur := ix.mem.Len()
	if n <= cur {
		return nil
	}
	next := max(n, cur+cur/4, 16)
	need := graph.Bytes(next-cur, ix.opts.maxDegree)
	if err := ix.opts.resources.AcquireMemory(need); err != nil {
		return err
	}
	ix.reserved += need
	ix.mem.Grow(next)
	ix.pool.Resize(next)
	return nil
}

// Delete marks id as deleted. The vector is excluded from results at once
// but stays traversable until Consolidate repairs its in-neighbors and
// releases the slot.
func (ix *Index) Delete(ctx context.Context, id uint64) error {
	start := time.Now()
	err := translateError(ix.delete(id))

	ix.opts.metricsCollector.RecordDelete(time.Since(start), err)
	ix.opts.logger.LogDelete(ctx, id, err)
	return err
}

func (ix *Index) delete(id uint64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.writable(); err != nil {
		return err
	}
	s, err := ix.ids.Slot(id)
	if err != nil {
		return err
	}
	if ix.deleted.Test(uint(s)) {
		return ErrInvalidID
	}
	ix.deleted.Set(uint(s))
	ix.numDeleted++
	return nil
}

// Consolidate repairs every node that points at a deleted node by pruning
// over its surviving neighbors and the deleted nodes' neighbors, then
// releases the deleted slots for reuse. It returns the number of released
// slots.
func (ix *Index) Consolidate(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	released, repaired, err := ix.consolidate(ctx)
	err = translateError(err)
	ix.opts.logger.LogConsolidate(ctx, released, repaired, err)
	return released, err
}

func (ix *Index) consolidate(ctx context.Context) (int, int, error) {
	if err := ix.writable(); err != nil {
		return 0, 0, err
	}
	if ix.numDeleted == 0 {
		return 0, 0, nil
	}

	rc := ix.opts.resources
	if err := rc.AcquireBackground(ctx); err != nil {
		return 0, 0, err
	}
	defer rc.ReleaseBackground()

	live := ix.liveSlots()
	var affected []Slot
	for _, s := range live {
		if slices.ContainsFunc(ix.mem.Neighbors(s), func(nb Slot) bool { return ix.deleted.Test(uint(nb)) }) {
			affected = append(affected, s)
		}
	}

	b := ix.newBuilder(ix.mem, ix.construction(), ix.mem.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.threads)
	for chunk := range slices.Chunk(affected, buildChunk) {
		g.Go(func() error {
			for _, p := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := b.repair(p); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	if err := ix.reselectEntryPoints(b, live); err != nil {
		return 0, 0, err
	}

	released := 0
	for d, ok := ix.deleted.NextSet(0); ok; d, ok = ix.deleted.NextSet(d + 1) {
		s := Slot(d)
		if err := ix.mem.SetNeighbors(s, nil); err != nil {
			return released, len(affected), err
		}
		ix.labels.Clear(s)
		if err := ix.ids.Release(s); err != nil {
			return released, len(affected), err
		}
		released++
	}
	ix.deleted.ClearAll()
	ix.numDeleted = 0
	return released, len(affected), nil
}

// repair rewires p around its deleted neighbors. Only p's own list is
// written, so repairs of different slots run concurrently.
func (b *builder) repair(p Slot) error {
	var cands []searcher.Candidate
	add := func(c Slot) error {
		if c == p || b.ix.deleted.Test(uint(c)) {
			return nil
		}
		d, err := b.store.Distance(p, c)
		if err != nil {
			return err
		}
		cands = append(cands, searcher.Candidate{Slot: c, Distance: d})
		return nil
	}

	for _, nb := range b.mem.Neighbors(p) {
		if !b.ix.deleted.Test(uint(nb)) {
			if err := add(nb); err != nil {
				return err
			}
			continue
		}
		for _, c := range b.mem.Neighbors(nb) {
			if err := add(c); err != nil {
				return err
			}
		}
	}

	list, err := b.prune(p, cands, b.ix.opts.alpha)
	if err != nil {
		return err
	}
	return b.mem.SetNeighbors(p, list)
}

// reselectEntryPoints replaces a deleted medoid and deleted label entry
// points with central live slots.
func (ix *Index) reselectEntryPoints(b *builder, live []Slot) error {
	rng := rand.New(rand.NewPCG(ix.opts.seed, 1))
	if ix.deleted.Test(uint(ix.medoid)) && len(live) > 0 {
		m, err := b.central(live, medoidSampleSize, rng)
		if err != nil {
			return err
		}
		ix.medoid = m
	}

	for l, ep := range ix.entryPoints {
		if !ix.deleted.Test(uint(ep)) {
			continue
		}
		var slots []Slot
		it := ix.labels.Postings(l).Iterator()
		for it.HasNext() {
			if s := it.Next(); ix.live(s) {
				slots = append(slots, s)
			}
		}
		if len(slots) == 0 {
			delete(ix.entryPoints, l)
			continue
		}
		next, err := b.central(slots, entryPointSampleSize, rng)
		if err != nil {
			return err
		}
		ix.entryPoints[l] = next
	}
	return nil
}
