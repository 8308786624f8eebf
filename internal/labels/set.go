package labels

import (
	"slices"
	"strconv"
	"strings"
)

// Label is an opaque attribute identifier.
type Label = uint32

// Set is a sorted, duplicate-free list of labels. The nil Set is empty.
type Set []Label

// NewSet builds a Set from labels in any order.
func NewSet(ls ...Label) Set {
	if len(ls) == 0 {
		return nil
	}
	s := slices.Clone(ls)
	slices.Sort(s)
	return Set(slices.Compact(s))
}

// Contains reports whether l is in the set.
func (s Set) Contains(l Label) bool {
	if len(s) <= 8 {
		for _, x := range s {
			if x == l {
				return true
			}
			if x > l {
				return false
			}
		}
		return false
	}
	_, ok := slices.BinarySearch(s, l)
	return ok
}

// Intersects reports whether s and other share a label.
func (s Set) Intersects(other Set) bool {
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] == other[j]:
			return true
		case s[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// String renders the set in the comma-separated label file form.
func (s Set) String() string {
	var b strings.Builder
	for i, l := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(l), 10))
	}
	return b.String()
}
