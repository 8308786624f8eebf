package vamana

import (
	"github.com/hupe1980/vamana/distance"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the state of an index.
type Stats struct {
	Dimension int
	Metric    distance.Metric

	// Count is the number of searchable vectors; Deleted the number of
	// vectors awaiting Consolidate. Slots is the slot high-water mark.
	Count   int
	Deleted int
	Slots   int

	MaxDegree         int
	AvgDegree         float64
	MaxObservedDegree int

	// Medoid is the external id of the unfiltered entry point.
	Medoid      uint64
	Labels      int
	EntryPoints int

	Built    bool
	Filtered bool
	PQChunks int
	Mapped   bool

	MemoryReserved int64
}

// Stats returns a snapshot of index statistics.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	st := Stats{
		Dimension:      ix.dim,
		Metric:         ix.opts.metric,
		Count:          ix.liveCount(),
		Deleted:        ix.numDeleted,
		Slots:          ix.ids.Cap(),
		MaxDegree:      ix.opts.maxDegree,
		Labels:         len(ix.labels.Distinct()),
		EntryPoints:    len(ix.entryPoints),
		Built:          ix.built,
		Filtered:       ix.opts.filtered,
		Mapped:         ix.mapping != nil,
		MemoryReserved: ix.reserved,
	}
	if ix.codes != nil {
		st.PQChunks = ix.codes.Quantizer().M()
	}
	if !ix.built || ix.closed {
		return st
	}

	if id, err := ix.ids.External(ix.medoid); err == nil {
		st.Medoid = id
	}

	degrees := make([]float64, 0, st.Count)
	for _, s := range ix.liveSlots() {
		d := ix.graph.Degree(s)
		degrees = append(degrees, float64(d))
		st.MaxObservedDegree = max(st.MaxObservedDegree, d)
	}
	if len(degrees) > 0 {
		st.AvgDegree = stat.Mean(degrees, nil)
	}
	return st
}
