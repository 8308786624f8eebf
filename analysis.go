package vamana

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vamana/internal/analysis"
	"github.com/hupe1980/vamana/internal/labels"
)

// LabelProfile reports how well the vectors carrying one label are
// connected among themselves. Start points are external ids.
type LabelProfile struct {
	Label   Label
	Members int

	MinDegree    int
	MaxDegree    int
	MeanDegree   float64
	StdDevDegree float64
	MedianDegree float64
	Isolated     int

	Starts    []StartPoint
	Reachable int
	Coverage  float64
}

// StartPoint is a well-connected member of a label.
type StartPoint struct {
	ID        uint64
	Degree    int
	Reachable int
}

// members returns the live slots passing a filter on label l.
func (ix *Index) members(l Label) *roaring.Bitmap {
	bm := ix.labels.Candidates(labels.Require(l)).Clone()
	it := bm.Clone().Iterator()
	for it.HasNext() {
		if s := it.Next(); !ix.live(s) {
			bm.Remove(s)
		}
	}
	return bm
}

// ProfileLabel computes degree statistics of the subgraph induced by the
// vectors matching label and the reach of its top best-connected members.
func (ix *Index) ProfileLabel(label Label, top int) (LabelProfile, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := ix.searchable(); err != nil {
		return LabelProfile{}, err
	}

	p := analysis.ProfileOf(ix.graph, ix.members(label), top)
	out := LabelProfile{
		Label:        label,
		Members:      p.Members,
		MinDegree:    p.MinDegree,
		MaxDegree:    p.MaxDegree,
		MeanDegree:   p.MeanDegree,
		StdDevDegree: p.StdDevDegree,
		MedianDegree: p.MedianDegree,
		Isolated:     p.Isolated,
		Reachable:    p.Reachable,
		Coverage:     p.Coverage(),
	}
	for _, st := range p.Starts {
		id, err := ix.ids.External(st.Slot)
		if err != nil {
			return LabelProfile{}, translateError(err)
		}
		out.Starts = append(out.Starts, StartPoint{ID: id, Degree: st.Degree, Reachable: st.Reachable})
	}
	return out, nil
}

// Components returns the strongly connected components of the subgraph
// induced by the vectors matching label, largest first, as external ids.
func (ix *Index) Components(label Label) ([][]uint64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := ix.searchable(); err != nil {
		return nil, err
	}

	comps := analysis.StronglyConnected(ix.graph, ix.members(label))
	out := make([][]uint64, len(comps))
	for i, comp := range comps {
		out[i] = make([]uint64, len(comp))
		for j, s := range comp {
			id, err := ix.ids.External(s)
			if err != nil {
				return nil, translateError(err)
			}
			out[i][j] = id
		}
	}
	return out, nil
}

// Labels returns every label in use, ascending.
func (ix *Index) Labels() []Label {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.labels.Distinct()
}
