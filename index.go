package vamana

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vamana/distance"
	"github.com/hupe1980/vamana/internal/graph"
	"github.com/hupe1980/vamana/internal/ids"
	"github.com/hupe1980/vamana/internal/labels"
	"github.com/hupe1980/vamana/internal/mmap"
	"github.com/hupe1980/vamana/internal/searcher"
	"github.com/hupe1980/vamana/internal/vectorstore"
)

// Label is a small integer tag attached to vectors and used by filters.
type Label = labels.Label

// Slot is the dense internal handle of a vector.
type Slot = uint32

// Index is a Vamana proximity graph over fixed-dimensional vectors with
// optional label filters and product quantization.
//
// Vectors are staged with Add and connected by Build. A built index serves
// Search and SearchBatch concurrently; Insert, Delete and Consolidate take
// the writer lock and wait for running searches.
type Index struct {
	mu   sync.RWMutex
	dim  int
	opts options

	ids    *ids.Allocator
	exact  *vectorstore.Floats // nil when only codes were persisted
	codes  *vectorstore.Codes  // nil without PQ
	labels *labels.Store

	graph graph.Store
	mem   *graph.Memory // nil when the graph is mapped

	medoid      Slot
	entryPoints map[Label]Slot
	deleted     *bitset.BitSet
	numDeleted  int

	built  bool
	closed bool
	pool   *searcher.Pool

	mapping  *mmap.Mapping
	reserved int64
}

// New creates an empty index for dim-dimensional vectors.
func New(dim int, opts ...Option) (*Index, error) {
	o := applyOptions(opts)
	if err := o.validate(dim); err != nil {
		return nil, err
	}

	exact, err := vectorstore.NewFloats(dim, o.metric, 0)
	if err != nil {
		return nil, translateError(err)
	}

	return &Index{
		dim:         dim,
		opts:        o,
		ids:         ids.NewAllocator(o.capacity),
		exact:       exact,
		labels:      labels.NewStore(o.labelOptions()...),
		entryPoints: make(map[Label]Slot),
		deleted:     bitset.New(0),
	}, nil
}

// Dimension returns the vector dimensionality.
func (ix *Index) Dimension() int { return ix.dim }

// Metric returns the distance metric.
func (ix *Index) Metric() distance.Metric { return ix.opts.metric }

// Len returns the number of live, not deleted vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.liveCount()
}

func (ix *Index) liveCount() int {
	return ix.ids.Len() - ix.numDeleted
}

// Add stages a vector with its labels before Build. Ids must be unique and
// must not equal math.MaxUint64.
func (ix *Index) Add(id uint64, v []float32, ls ...Label) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	switch {
	case ix.closed:
		return ErrClosed
	case ix.built:
		return ErrAlreadyBuilt
	}
	if len(v) != ix.dim {
		return &ErrDimensionMismatch{Expected: ix.dim, Actual: len(v)}
	}
	_, err := ix.put(id, v, ls)
	return translateError(err)
}

// put allocates a slot for id and writes its vector and labels.
func (ix *Index) put(id uint64, v []float32, ls []Label) (Slot, error) {
	s, err := ix.ids.Allocate(id)
	if err != nil {
		return 0, err
	}
	if ix.exact != nil {
		if err := ix.exact.Put(s, v); err != nil {
			_ = ix.ids.Release(s)
			return 0, err
		}
	}
	if ix.codes != nil {
		if err := ix.codes.Put(s, v); err != nil {
			_ = ix.ids.Release(s)
			return 0, err
		}
	}
	ix.labels.Set(s, labels.NewSet(ls...))
	return s, nil
}

// live reports whether s holds a vector that has not been deleted.
func (ix *Index) live(s Slot) bool {
	return ix.ids.Live(s) && !ix.deleted.Test(uint(s))
}

// liveSlots lists the slots a build connects, in ascending order.
func (ix *Index) liveSlots() []Slot {
	out := make([]Slot, 0, ix.ids.Len())
	for s := range ix.ids.Cap() {
		if ix.live(Slot(s)) {
			out = append(out, Slot(s))
		}
	}
	return out
}

// traversal returns the store queries walk the graph with.
func (ix *Index) traversal() vectorstore.Store {
	if ix.codes != nil {
		return ix.codes
	}
	return ix.exact
}

// construction returns the most precise store available for pruning.
func (ix *Index) construction() vectorstore.Store {
	if ix.exact != nil {
		return ix.exact
	}
	return ix.codes
}

func (ix *Index) searchable() error {
	switch {
	case ix.closed:
		return ErrClosed
	case !ix.built:
		return ErrNotBuilt
	}
	return nil
}

func (ix *Index) writable() error {
	if err := ix.searchable(); err != nil {
		return err
	}
	if ix.mem == nil || ix.construction() == nil {
		return ErrReadOnly
	}
	return nil
}

// Close releases the file mapping and the memory reservation. Searches
// started afterwards return ErrClosed.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return nil
	}
	ix.closed = true
	ix.opts.resources.ReleaseMemory(ix.reserved)
	ix.reserved = 0

	if ix.mapping != nil {
		if err := ix.mapping.Close(); err != nil {
			return fmt.Errorf("close mapping: %w", err)
		}
		ix.mapping = nil
	}
	return nil
}
