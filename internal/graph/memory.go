package graph

import (
	"fmt"
	"sync"
)

// Memory is an in-memory graph with room for R neighbors per slot.
//
// Reads through Neighbors are lock-free and only valid while no writer is
// active. Writers go through SetNeighbors, Update or Link, which take the
// owning slot's lock; Link takes two and always locks the lower slot first.
type Memory struct {
	r     int
	adj   []Slot
	deg   []uint32
	locks []sync.Mutex
}

// NewMemory allocates a graph of n slots with maximum degree r.
func NewMemory(n, r int) (*Memory, error) {
	if r <= 0 {
		return nil, fmt.Errorf("graph: max degree must be positive, got %d", r)
	}
	if n < 0 {
		return nil, fmt.Errorf("graph: negative slot count %d", n)
	}
	return &Memory{
		r:     r,
		adj:   make([]Slot, n*r),
		deg:   make([]uint32, n),
		locks: make([]sync.Mutex, n),
	}, nil
}

// Bytes estimates the memory held by a graph of n slots and degree r.
func Bytes(n, r int) int64 {
	return int64(n) * (int64(r)*4 + 4 + 8)
}

func (g *Memory) Len() int       { return len(g.deg) }
func (g *Memory) MaxDegree() int { return g.r }

func (g *Memory) Degree(s Slot) int {
	if int(s) >= len(g.deg) {
		return 0
	}
	return int(g.deg[s])
}

func (g *Memory) Neighbors(s Slot) []Slot {
	if int(s) >= len(g.deg) {
		return nil
	}
	off := int(s) * g.r
	return g.adj[off : off+int(g.deg[s])]
}

func (g *Memory) AppendNeighbors(dst []Slot, s Slot) []Slot {
	if int(s) >= len(g.deg) {
		return dst
	}
	g.locks[s].Lock()
	dst = append(dst, g.Neighbors(s)...)
	g.locks[s].Unlock()
	return dst
}

func (g *Memory) SetNeighbors(s Slot, list []Slot) error {
	if int(s) >= len(g.deg) {
		return ErrInvalidSlot
	}
	if err := validate(s, list, len(g.deg), g.r); err != nil {
		return err
	}
	g.locks[s].Lock()
	g.setLocked(s, list)
	g.locks[s].Unlock()
	return nil
}

// Update replaces the neighbor list of s with the result of fn, applied to
// the current list under the slot's lock. fn must not retain cur.
func (g *Memory) Update(s Slot, fn func(cur []Slot) ([]Slot, error)) error {
	if int(s) >= len(g.deg) {
		return ErrInvalidSlot
	}
	g.locks[s].Lock()
	defer g.locks[s].Unlock()

	next, err := fn(g.Neighbors(s))
	if err != nil {
		return err
	}
	if err := validate(s, next, len(g.deg), g.r); err != nil {
		return err
	}
	g.setLocked(s, next)
	return nil
}

// Link adds the mutual edge a<->b when both lists have room and the edge is
// not already present in either direction. It reports whether both edges
// are now in place.
func (g *Memory) Link(a, b Slot) bool {
	if a == b || int(a) >= len(g.deg) || int(b) >= len(g.deg) {
		return false
	}
	g.LockPair(a, b)
	defer g.UnlockPair(a, b)

	hasAB := contains(g.Neighbors(a), b)
	hasBA := contains(g.Neighbors(b), a)
	if (!hasAB && int(g.deg[a]) >= g.r) || (!hasBA && int(g.deg[b]) >= g.r) {
		return false
	}
	if !hasAB {
		g.adj[int(a)*g.r+int(g.deg[a])] = b
		g.deg[a]++
	}
	if !hasBA {
		g.adj[int(b)*g.r+int(g.deg[b])] = a
		g.deg[b]++
	}
	return true
}

// Lock acquires the lock of s.
func (g *Memory) Lock(s Slot) { g.locks[s].Lock() }

// Unlock releases the lock of s.
func (g *Memory) Unlock(s Slot) { g.locks[s].Unlock() }

// LockPair acquires the locks of a and b, lower slot first.
func (g *Memory) LockPair(a, b Slot) {
	if a == b {
		g.locks[a].Lock()
		return
	}
	if a > b {
		a, b = b, a
	}
	g.locks[a].Lock()
	g.locks[b].Lock()
}

// UnlockPair releases the locks taken by LockPair.
func (g *Memory) UnlockPair(a, b Slot) {
	g.locks[a].Unlock()
	if a != b {
		g.locks[b].Unlock()
	}
}

// Grow extends the graph to n slots. It must not run concurrently with any
// other method.
func (g *Memory) Grow(n int) {
	if n <= len(g.deg) {
		return
	}
	adj := make([]Slot, n*g.r)
	copy(adj, g.adj)
	deg := make([]uint32, n)
	copy(deg, g.deg)

	g.adj = adj
	g.deg = deg
	g.locks = make([]sync.Mutex, n)
}

func (g *Memory) setLocked(s Slot, list []Slot) {
	off := int(s) * g.r
	copy(g.adj[off:off+len(list)], list)
	g.deg[s] = uint32(len(list))
}

func contains(list []Slot, v Slot) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
