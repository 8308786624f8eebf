package vectorstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vamana/distance"
)

// Slot is the dense internal vector handle.
type Slot = uint32

var (
	// ErrReadOnly is returned when writing to a mapped store.
	ErrReadOnly = errors.New("vectorstore: store is read-only")
	// ErrInvalidSlot is returned for a slot beyond the stored range.
	ErrInvalidSlot = errors.New("vectorstore: invalid slot")
	// ErrInvalidDimension is returned for a non-positive dimensionality.
	ErrInvalidDimension = errors.New("vectorstore: dimension must be positive")
)

// DimensionMismatchError reports a vector whose length differs from the
// store's dimensionality.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vectorstore: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// QueryDistance evaluates distances from one prepared query to stored slots.
// The slot must be valid; implementations do not re-check it.
type QueryDistance interface {
	Distance(s Slot) float32
}

// Store owns slot vectors and computes distances over them.
//
// Reads are safe for concurrent use. Put must not run concurrently with any
// other call; the index serializes writers.
type Store interface {
	// Dim returns the fixed dimensionality.
	Dim() int
	// Len returns one past the highest slot written.
	Len() int
	// Metric returns the distance metric.
	Metric() distance.Metric
	// Put stores v at slot s, growing the store as needed.
	Put(s Slot, v []float32) error
	// Get returns the vector stored at s. For compressed stores this is
	// the decoded approximation.
	Get(s Slot) ([]float32, error)
	// Distance returns the distance between two stored slots.
	Distance(a, b Slot) (float32, error)
	// DistanceToQuery returns the distance from q to slot s.
	DistanceToQuery(q []float32, s Slot) (float32, error)
	// ForQuery validates and prepares q for repeated distance evaluation.
	ForQuery(q []float32) (QueryDistance, error)
}

// prepareQuery validates q and returns the form distances are computed on.
func prepareQuery(q []float32, dim int, metric distance.Metric) ([]float32, error) {
	if len(q) != dim {
		return nil, &DimensionMismatchError{Expected: dim, Actual: len(q)}
	}
	if metric.NeedsNormalization() {
		if n, ok := distance.NormalizeL2Copy(q); ok {
			return n, nil
		}
	}
	return q, nil
}
