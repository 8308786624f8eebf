package graph

import "fmt"

// Mapped is a read-only graph over fixed-stride records, typically the
// record section of a memory-mapped index file. Each record holds a degree
// word followed by R neighbor words.
type Mapped struct {
	view   []uint32
	n      int
	r      int
	stride int
	offset int
}

// NewMapped wraps view, which holds n records of stride words each. The
// degree word of every record sits at offset.
func NewMapped(view []uint32, n, r, stride, offset int) (*Mapped, error) {
	if r <= 0 || offset < 0 || offset+1+r > stride {
		return nil, fmt.Errorf("graph: record (offset %d, degree %d) does not fit stride %d", offset, r, stride)
	}
	if n < 0 || len(view) < n*stride {
		return nil, ErrInvalidSlot
	}
	return &Mapped{view: view, n: n, r: r, stride: stride, offset: offset}, nil
}

func (g *Mapped) Len() int       { return g.n }
func (g *Mapped) MaxDegree() int { return g.r }

func (g *Mapped) Degree(s Slot) int {
	if int(s) >= g.n {
		return 0
	}
	return int(min(g.view[int(s)*g.stride+g.offset], uint32(g.r)))
}

func (g *Mapped) Neighbors(s Slot) []Slot {
	if int(s) >= g.n {
		return nil
	}
	base := int(s)*g.stride + g.offset
	return g.view[base+1 : base+1+g.Degree(s)]
}

func (g *Mapped) AppendNeighbors(dst []Slot, s Slot) []Slot {
	return append(dst, g.Neighbors(s)...)
}

func (g *Mapped) SetNeighbors(Slot, []Slot) error {
	return ErrReadOnly
}

// Validate checks that every record's degree fits R and that every neighbor
// is an in-range slot other than its owner. Duplicates are not checked.
func (g *Mapped) Validate() error {
	for s := range g.n {
		base := s*g.stride + g.offset
		if int(g.view[base]) > g.r {
			return fmt.Errorf("graph: slot %d: %w", s, ErrCapacityExceeded)
		}
		for _, v := range g.Neighbors(Slot(s)) {
			if v == Slot(s) || int(v) >= g.n {
				return fmt.Errorf("graph: slot %d: %w", s, ErrInvalidNeighbor)
			}
		}
	}
	return nil
}
