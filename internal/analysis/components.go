package analysis

import (
	"cmp"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// StronglyConnected returns the strongly connected components of the
// subgraph induced by members, largest first. Slots within a component are
// ascending; components of equal size are ordered by their lowest slot.
// The walk is an iterative Tarjan.
func StronglyConnected(g Graph, members *roaring.Bitmap) [][]Slot {
	type frame struct {
		s    Slot
		next int
	}

	index := make(map[Slot]int, members.GetCardinality())
	low := make(map[Slot]int, members.GetCardinality())
	onStack := roaring.New()
	var stack []Slot
	var comps [][]Slot
	counter := 0

	visit := func(s Slot) {
		index[s] = counter
		low[s] = counter
		counter++
		stack = append(stack, s)
		onStack.Add(s)
	}

	it := members.Iterator()
	for it.HasNext() {
		root := it.Next()
		if _, done := index[root]; done || int(root) >= g.Len() {
			continue
		}

		visit(root)
		calls := []frame{{s: root}}
		for len(calls) > 0 {
			top := &calls[len(calls)-1]
			nbrs := g.Neighbors(top.s)

			descended := false
			for top.next < len(nbrs) {
				w := nbrs[top.next]
				top.next++
				if !members.Contains(w) || int(w) >= g.Len() {
					continue
				}
				if _, seen := index[w]; !seen {
					visit(w)
					calls = append(calls, frame{s: w})
					descended = true
					break
				}
				if onStack.Contains(w) {
					low[top.s] = min(low[top.s], index[w])
				}
			}
			if descended {
				continue
			}

			v := top.s
			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].s
				low[parent] = min(low[parent], low[v])
			}

			if low[v] == index[v] {
				var comp []Slot
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack.Remove(w)
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				slices.Sort(comp)
				comps = append(comps, comp)
			}
		}
	}

	slices.SortFunc(comps, func(a, b []Slot) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a[0], b[0])
	})
	return comps
}
