package graph

import (
	"errors"
	"math"
)

// Slot is the dense internal vector handle.
type Slot = uint32

// NoNeighbor pads unused entries of a persisted neighbor record.
const NoNeighbor Slot = math.MaxUint32

var (
	// ErrCapacityExceeded is returned for a neighbor list longer than the
	// maximum degree.
	ErrCapacityExceeded = errors.New("graph: neighbor list exceeds max degree")
	// ErrInvalidNeighbor is returned for self references, duplicates and
	// out-of-range neighbors.
	ErrInvalidNeighbor = errors.New("graph: invalid neighbor")
	// ErrInvalidSlot is returned for a slot outside the graph.
	ErrInvalidSlot = errors.New("graph: invalid slot")
	// ErrReadOnly is returned when mutating a mapped graph.
	ErrReadOnly = errors.New("graph: read-only")
)

// Store is the adjacency capability the index engine depends on.
type Store interface {
	// Len returns the number of slots.
	Len() int
	// MaxDegree returns R.
	MaxDegree() int
	// Degree returns the current out-degree of s.
	Degree(s Slot) int
	// Neighbors returns a view of the neighbor list of s. The view is only
	// stable while the graph is not being mutated.
	Neighbors(s Slot) []Slot
	// AppendNeighbors appends a consistent copy of the neighbor list of s.
	AppendNeighbors(dst []Slot, s Slot) []Slot
	// SetNeighbors replaces the neighbor list of s.
	SetNeighbors(s Slot, list []Slot) error
}

// validate checks list against the neighbor-list invariants of slot s in a
// graph of n slots with maximum degree r.
func validate(s Slot, list []Slot, n, r int) error {
	if len(list) > r {
		return ErrCapacityExceeded
	}
	for i, v := range list {
		if v == s || int(v) >= n {
			return ErrInvalidNeighbor
		}
		for _, w := range list[:i] {
			if w == v {
				return ErrInvalidNeighbor
			}
		}
	}
	return nil
}
