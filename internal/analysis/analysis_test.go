package analysis

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adjacency [][]Slot

func (a adjacency) Len() int                { return len(a) }
func (a adjacency) Neighbors(s Slot) []Slot { return a[s] }

func TestProfileOf(t *testing.T) {
	// 0 <-> 1 -> 2, 3 is a member without member neighbors, 4 is not a member.
	g := adjacency{
		{1, 4},
		{0, 2},
		{4},
		{4},
		{0, 1, 2, 3},
	}
	members := roaring.BitmapOf(0, 1, 2, 3)

	p := ProfileOf(g, members, 2)
	assert.Equal(t, 4, p.Members)
	assert.Equal(t, 0, p.MinDegree)
	assert.Equal(t, 2, p.MaxDegree)
	assert.InDelta(t, 0.75, p.MeanDegree, 1e-9)
	assert.Equal(t, 2, p.Isolated)

	require.Len(t, p.Starts, 2)
	assert.Equal(t, Start{Slot: 1, Degree: 2, Reachable: 3}, p.Starts[0])
	assert.Equal(t, Start{Slot: 0, Degree: 1, Reachable: 3}, p.Starts[1])
	assert.Equal(t, 3, p.Reachable)
	assert.InDelta(t, 0.75, p.Coverage(), 1e-9)

	assert.Equal(t, map[Slot]int{0: 1, 1: 2, 2: 0, 3: 0}, Degrees(g, members))
}

func TestProfileOfEmpty(t *testing.T) {
	p := ProfileOf(adjacency{{}}, roaring.New(), 3)
	assert.Zero(t, p.Members)
	assert.Empty(t, p.Starts)
	assert.Zero(t, p.Coverage())
}

func TestReachSkipsNonMembers(t *testing.T) {
	g := adjacency{{1}, {2}, {3}, {}}
	members := roaring.BitmapOf(0, 1, 3)

	assert.Equal(t, []uint32{0, 1}, Reach(g, members, 0).ToArray())
	assert.Equal(t, []uint32{2, 3}, Reach(g, members, 2).ToArray())
	assert.True(t, Reach(g, members, 9).IsEmpty())
}

func TestStronglyConnected(t *testing.T) {
	// {0,1,2} is a cycle, {3,4} a pair, 5 points into the cycle, 6 is outside.
	g := adjacency{
		{1},
		{2},
		{0, 3},
		{4},
		{3, 6},
		{0},
		{5},
	}
	members := roaring.BitmapOf(0, 1, 2, 3, 4, 5)

	comps := StronglyConnected(g, members)
	assert.Equal(t, [][]Slot{{0, 1, 2}, {3, 4}, {5}}, comps)
}

func TestStronglyConnectedLongChain(t *testing.T) {
	const n = 100_000
	g := make(adjacency, n)
	members := roaring.New()
	for i := range n {
		g[i] = []Slot{Slot((i + 1) % n)}
		members.Add(Slot(i))
	}

	comps := StronglyConnected(g, members)
	require.Len(t, comps, 1)
	assert.Len(t, comps[0], n)

	g[n-1] = nil
	comps = StronglyConnected(g, members)
	assert.Len(t, comps, n)
}
