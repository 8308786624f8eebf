package labels

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Slot is the dense internal vector handle.
type Slot = uint32

// DefaultUniversal is the label that matches every filter unless configured
// otherwise.
const DefaultUniversal Label = 0

// Store keeps the label set of every slot plus a posting bitmap per label.
//
// The store is not synchronized. The index writes it only while holding its
// writer lock and reads it concurrently from queries afterwards.
type Store struct {
	sets         []Set
	postings     map[Label]*roaring.Bitmap
	universal    Label
	hasUniversal bool
}

// Option configures a Store.
type Option func(*Store)

// WithUniversal sets the label that matches any filter.
func WithUniversal(l Label) Option {
	return func(s *Store) {
		s.universal = l
		s.hasUniversal = true
	}
}

// WithoutUniversal disables universal-label matching.
func WithoutUniversal() Option {
	return func(s *Store) {
		s.hasUniversal = false
	}
}

// NewStore creates an empty label store. The universal label defaults to
// DefaultUniversal.
func NewStore(opts ...Option) *Store {
	s := &Store{
		postings:     make(map[Label]*roaring.Bitmap),
		universal:    DefaultUniversal,
		hasUniversal: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Universal returns the universal label and whether one is configured.
func (s *Store) Universal() (Label, bool) {
	return s.universal, s.hasUniversal
}

// Len returns one past the highest slot that has been assigned labels.
func (s *Store) Len() int {
	return len(s.sets)
}

// Set replaces the labels of slot.
func (s *Store) Set(slot Slot, set Set) {
	if int(slot) >= len(s.sets) {
		grown := make([]Set, int(slot)+1)
		copy(grown, s.sets)
		s.sets = grown
	}

	for _, l := range s.sets[slot] {
		if bm := s.postings[l]; bm != nil {
			bm.Remove(slot)
			if bm.IsEmpty() {
				delete(s.postings, l)
			}
		}
	}

	s.sets[slot] = set
	for _, l := range set {
		bm := s.postings[l]
		if bm == nil {
			bm = roaring.New()
			s.postings[l] = bm
		}
		bm.Add(slot)
	}
}

// Clear removes every label of slot.
func (s *Store) Clear(slot Slot) {
	if int(slot) < len(s.sets) {
		s.Set(slot, nil)
	}
}

// Labels returns the label set of slot. Callers must not modify it.
func (s *Store) Labels(slot Slot) Set {
	if int(slot) >= len(s.sets) {
		return nil
	}
	return s.sets[slot]
}

// IsUniversal reports whether slot carries the universal label.
func (s *Store) IsUniversal(slot Slot) bool {
	return s.hasUniversal && s.Labels(slot).Contains(s.universal)
}

// Matches reports whether slot passes a single required label.
func (s *Store) Matches(slot Slot, required Label) bool {
	set := s.Labels(slot)
	return set.Contains(required) || (s.hasUniversal && set.Contains(s.universal))
}

// Match reports whether slot passes f. An inactive filter passes every slot.
func (s *Store) Match(slot Slot, f Filter) bool {
	if !f.Active() {
		return true
	}
	set := s.Labels(slot)
	if set.Intersects(f.any) {
		return true
	}
	return s.hasUniversal && set.Contains(s.universal)
}

// Postings returns the slots carrying l. The bitmap is shared; callers must
// clone it before mutating.
func (s *Store) Postings(l Label) *roaring.Bitmap {
	if bm := s.postings[l]; bm != nil {
		return bm
	}
	return roaring.New()
}

// Count returns the number of slots carrying l.
func (s *Store) Count(l Label) int {
	if bm := s.postings[l]; bm != nil {
		return int(bm.GetCardinality())
	}
	return 0
}

// Candidates returns the slots that can pass f: the union of the postings of
// its labels and of the universal label.
func (s *Store) Candidates(f Filter) *roaring.Bitmap {
	bms := make([]*roaring.Bitmap, 0, len(f.any)+1)
	for _, l := range f.any {
		if bm := s.postings[l]; bm != nil {
			bms = append(bms, bm)
		}
	}
	if s.hasUniversal {
		if bm := s.postings[s.universal]; bm != nil {
			bms = append(bms, bm)
		}
	}
	return roaring.FastOr(bms...)
}

// Distinct returns every label in use, ascending.
func (s *Store) Distinct() []Label {
	out := make([]Label, 0, len(s.postings))
	for l := range s.postings {
		out = append(out, l)
	}
	return NewSet(out...)
}
