package analysis

import (
	"cmp"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/stat"
)

// Slot is the dense internal vector handle.
type Slot = uint32

// Graph is the read-only adjacency view the analyses walk.
type Graph interface {
	Len() int
	Neighbors(s Slot) []Slot
}

// Start is a candidate start point of a label-restricted search.
type Start struct {
	Slot Slot
	// Degree counts the neighbors of Slot that are members too.
	Degree int
	// Reachable is the number of members a breadth-first walk from Slot
	// through members reaches, Slot included.
	Reachable int
}

// Profile summarizes the subgraph induced by a member set.
type Profile struct {
	Members int

	MinDegree    int
	MaxDegree    int
	MeanDegree   float64
	StdDevDegree float64
	MedianDegree float64
	// Isolated counts members without a member neighbor.
	Isolated int

	// Starts holds the members with the highest restricted degree, best
	// first. Ties go to the lower slot.
	Starts []Start
	// Reachable is the size of the union of the walks from all Starts.
	Reachable int
}

// Coverage returns the share of members reachable from the start points.
func (p Profile) Coverage() float64 {
	if p.Members == 0 {
		return 0
	}
	return float64(p.Reachable) / float64(p.Members)
}

// Degrees returns the restricted degree of every member: the number of its
// neighbors that are members as well.
func Degrees(g Graph, members *roaring.Bitmap) map[Slot]int {
	out := make(map[Slot]int, members.GetCardinality())
	it := members.Iterator()
	for it.HasNext() {
		s := it.Next()
		if int(s) >= g.Len() {
			continue
		}
		d := 0
		for _, nb := range g.Neighbors(s) {
			if members.Contains(nb) {
				d++
			}
		}
		out[s] = d
	}
	return out
}

// ProfileOf computes degree statistics of the subgraph induced by members
// and walks it from the top highest-degree members.
func ProfileOf(g Graph, members *roaring.Bitmap, top int) Profile {
	deg := Degrees(g, members)
	p := Profile{Members: len(deg)}
	if len(deg) == 0 {
		return p
	}

	starts := make([]Start, 0, len(deg))
	values := make([]float64, 0, len(deg))
	p.MinDegree = g.Len()
	for s, d := range deg {
		starts = append(starts, Start{Slot: s, Degree: d})
		values = append(values, float64(d))
		p.MinDegree = min(p.MinDegree, d)
		p.MaxDegree = max(p.MaxDegree, d)
		if d == 0 {
			p.Isolated++
		}
	}

	slices.Sort(values)
	p.MeanDegree, p.StdDevDegree = stat.MeanStdDev(values, nil)
	p.MedianDegree = stat.Quantile(0.5, stat.Empirical, values, nil)

	slices.SortFunc(starts, func(a, b Start) int {
		if c := cmp.Compare(b.Degree, a.Degree); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
	starts = starts[:min(max(top, 0), len(starts))]

	union := roaring.New()
	for i := range starts {
		seen := Reach(g, members, starts[i].Slot)
		starts[i].Reachable = int(seen.GetCardinality())
		union.Or(seen)
	}
	p.Starts = starts
	p.Reachable = int(union.GetCardinality())
	return p
}

// Reach returns the members a breadth-first walk from start reaches when it
// only steps onto members. start is included even when it is not a member.
func Reach(g Graph, members *roaring.Bitmap, start Slot) *roaring.Bitmap {
	seen := roaring.New()
	if int(start) >= g.Len() {
		return seen
	}
	seen.Add(start)
	queue := []Slot{start}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, nb := range g.Neighbors(s) {
			if members.Contains(nb) && seen.CheckedAdd(nb) {
				queue = append(queue, nb)
			}
		}
	}
	return seen
}
