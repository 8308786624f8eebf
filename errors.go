package vamana

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vamana/internal/graph"
	"github.com/hupe1980/vamana/internal/ids"
	"github.com/hupe1980/vamana/internal/layout"
	"github.com/hupe1980/vamana/internal/quantization"
	"github.com/hupe1980/vamana/internal/resource"
	"github.com/hupe1980/vamana/internal/vectorstore"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidID is returned for unknown, deleted or reserved identifiers.
	ErrInvalidID = errors.New("invalid id")

	// ErrDuplicateID is returned when inserting an id that is already live.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUntrainedCodec is returned when compressed distances are requested
	// before the quantizer has been trained.
	ErrUntrainedCodec = errors.New("codec not trained")

	// ErrCapacityExceeded is returned when no slot is left, or when a
	// neighbor list would exceed the maximum degree.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrCorruptIndexFile is returned when a persisted index fails validation.
	ErrCorruptIndexFile = errors.New("corrupt index file")

	// ErrOutOfMemory is returned when the memory budget cannot cover an
	// operation. Nothing is published when it is returned.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotBuilt is returned by searches and updates before Build.
	ErrNotBuilt = errors.New("index not built")

	// ErrAlreadyBuilt is returned by Add after Build; use Insert instead.
	ErrAlreadyBuilt = errors.New("index already built")

	// ErrReadOnly is returned when mutating an index opened with OpenFile.
	ErrReadOnly = errors.New("index is read-only")

	// ErrClosed is returned when using an index after Close.
	ErrClosed = errors.New("index closed")

	// ErrInvalidOption is returned for out-of-range configuration.
	ErrInvalidOption = errors.New("invalid option")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// BuildError reports the slot whose processing aborted a build.
type BuildError struct {
	Slot uint32
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed at slot %d: %v", e.Slot, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var be *BuildError
	if errors.As(err, &be) {
		if inner := translateError(be.Err); inner != be.Err {
			return &BuildError{Slot: be.Slot, Err: inner}
		}
		return err
	}

	// Dimension normalization.
	var vdm *vectorstore.DimensionMismatchError
	if errors.As(err, &vdm) {
		return &ErrDimensionMismatch{Expected: vdm.Expected, Actual: vdm.Actual, cause: err}
	}
	var qdm *quantization.DimensionMismatchError
	if errors.As(err, &qdm) {
		return &ErrDimensionMismatch{Expected: qdm.Expected, Actual: qdm.Actual, cause: err}
	}

	switch {
	case errors.Is(err, ids.ErrInvalidID):
		return fmt.Errorf("%w: %w", ErrInvalidID, err)
	case errors.Is(err, ids.ErrDuplicateID):
		return fmt.Errorf("%w: %w", ErrDuplicateID, err)
	case errors.Is(err, ids.ErrCapacityExceeded), errors.Is(err, graph.ErrCapacityExceeded):
		return fmt.Errorf("%w: %w", ErrCapacityExceeded, err)
	case errors.Is(err, quantization.ErrNotTrained):
		return fmt.Errorf("%w: %w", ErrUntrainedCodec, err)
	case errors.Is(err, layout.ErrCorrupt), errors.Is(err, graph.ErrInvalidNeighbor):
		return fmt.Errorf("%w: %w", ErrCorruptIndexFile, err)
	case errors.Is(err, resource.ErrMemoryLimitExceeded):
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	case errors.Is(err, vectorstore.ErrReadOnly), errors.Is(err, graph.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	}

	return err
}
