package ids

import (
	"errors"
	"math"
	"sync"
)

// Slot is a dense, internal identifier for a vector.
// It is used for all hot-path structures (graph adjacency, bitsets, heaps).
type Slot = uint32

// ID is the stable, caller-facing identifier of a vector.
type ID = uint64

// Tombstone marks a slot whose external mapping has been released.
// It is never a valid external identifier.
const Tombstone ID = math.MaxUint64

var (
	// ErrInvalidID is returned for unknown, never-allocated or released identifiers.
	ErrInvalidID = errors.New("ids: invalid id")
	// ErrDuplicateID is returned when an external identifier is already live.
	ErrDuplicateID = errors.New("ids: duplicate id")
	// ErrCapacityExceeded is returned when no slot is left.
	ErrCapacityExceeded = errors.New("ids: capacity exceeded")
)

// Allocator assigns slots to external identifiers.
type Allocator struct {
	mu       sync.RWMutex
	toSlot   map[ID]Slot
	toID     []ID
	free     []Slot
	capacity int
}

// NewAllocator creates an allocator. capacity <= 0 means unbounded
// (limited only by the 32-bit slot space).
func NewAllocator(capacity int) *Allocator {
	if capacity <= 0 || capacity > math.MaxUint32 {
		capacity = math.MaxUint32
	}
	return &Allocator{
		toSlot:   make(map[ID]Slot),
		capacity: capacity,
	}
}

// Allocate maps id to a slot, reusing the most recently released slot first.
func (a *Allocator) Allocate(id ID) (Slot, error) {
	if id == Tombstone {
		return 0, ErrInvalidID
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.toSlot[id]; ok {
		return 0, ErrDuplicateID
	}

	var s Slot
	if n := len(a.free); n > 0 {
		s = a.free[n-1]
		a.free = a.free[:n-1]
		a.toID[s] = id
	} else {
		if len(a.toID) >= a.capacity {
			return 0, ErrCapacityExceeded
		}
		s = Slot(len(a.toID))
		a.toID = append(a.toID, id)
	}

	a.toSlot[id] = s
	return s, nil
}

// Release retires slot and makes it eligible for reuse.
func (a *Allocator) Release(s Slot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(s) >= len(a.toID) || a.toID[s] == Tombstone {
		return ErrInvalidID
	}

	delete(a.toSlot, a.toID[s])
	a.toID[s] = Tombstone
	a.free = append(a.free, s)
	return nil
}

// Slot returns the slot mapped to id.
func (a *Allocator) Slot(id ID) (Slot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s, ok := a.toSlot[id]
	if !ok {
		return 0, ErrInvalidID
	}
	return s, nil
}

// External returns the external identifier of slot.
func (a *Allocator) External(s Slot) (ID, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if int(s) >= len(a.toID) || a.toID[s] == Tombstone {
		return 0, ErrInvalidID
	}
	return a.toID[s], nil
}

// Live reports whether slot is currently allocated.
func (a *Allocator) Live(s Slot) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return int(s) < len(a.toID) && a.toID[s] != Tombstone
}

// Len returns the number of live slots.
func (a *Allocator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.toSlot)
}

// Cap returns the slot high-water mark: every slot ever handed out is < Cap.
func (a *Allocator) Cap() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.toID)
}

// Free returns the number of released slots waiting for reuse.
func (a *Allocator) Free() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.free)
}

// Snapshot returns the external identifier of every slot below Cap, with
// Tombstone for released slots.
func (a *Allocator) Snapshot() []ID {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ID, len(a.toID))
	copy(out, a.toID)
	return out
}

// Restore rebuilds an allocator from a Snapshot. Released slots are queued
// so that the lowest one is reused first.
func Restore(snapshot []ID, capacity int) (*Allocator, error) {
	a := NewAllocator(capacity)
	if len(snapshot) > a.capacity {
		return nil, ErrCapacityExceeded
	}

	a.toID = make([]ID, len(snapshot))
	copy(a.toID, snapshot)

	for i := len(snapshot) - 1; i >= 0; i-- {
		id := snapshot[i]
		if id == Tombstone {
			a.free = append(a.free, Slot(i))
			continue
		}
		if _, dup := a.toSlot[id]; dup {
			return nil, ErrDuplicateID
		}
		a.toSlot[id] = Slot(i)
	}
	return a, nil
}
