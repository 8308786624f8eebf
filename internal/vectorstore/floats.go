package vectorstore

import (
	"slices"

	"github.com/hupe1980/vamana/distance"
)

// Floats stores full-precision vectors in one contiguous arena.
//
// Vector i lives at data[i*stride : i*stride+dim]. In-memory stores use
// stride == dim; mapped stores use the persisted record stride so vectors
// are read in place.
type Floats struct {
	dim      int
	stride   int
	n        int
	metric   distance.Metric
	fn       distance.Func
	data     []float32
	readOnly bool
}

var _ Store = (*Floats)(nil)

// NewFloats creates an empty in-memory store with room for capacity vectors.
func NewFloats(dim int, metric distance.Metric, capacity int) (*Floats, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	return &Floats{
		dim:    dim,
		stride: dim,
		metric: metric,
		fn:     fn,
		data:   make([]float32, 0, max(capacity, 0)*dim),
	}, nil
}

// LoadFloats creates a writable in-memory store that takes ownership of data,
// which holds len(data)/dim packed vectors. Cosine vectors must already be
// normalized; they are stored as given.
func LoadFloats(data []float32, dim int, metric distance.Metric) (*Floats, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	if len(data)%dim != 0 {
		return nil, &DimensionMismatchError{Expected: dim, Actual: len(data) % dim}
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	return &Floats{
		dim:    dim,
		stride: dim,
		n:      len(data) / dim,
		metric: metric,
		fn:     fn,
		data:   data,
	}, nil
}

// NewMappedFloats wraps an existing read-only view holding n vectors of dim
// values spaced stride values apart. Cosine vectors must already be normalized.
func NewMappedFloats(view []float32, dim, stride, n int, metric distance.Metric) (*Floats, error) {
	if dim <= 0 || stride < dim {
		return nil, ErrInvalidDimension
	}
	if n > 0 && len(view) < (n-1)*stride+dim {
		return nil, ErrInvalidSlot
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	return &Floats{
		dim:      dim,
		stride:   stride,
		n:        n,
		metric:   metric,
		fn:       fn,
		data:     view,
		readOnly: true,
	}, nil
}

func (f *Floats) Dim() int                { return f.dim }
func (f *Floats) Len() int                { return f.n }
func (f *Floats) Metric() distance.Metric { return f.metric }

// Put stores a copy of v at slot s. Cosine vectors are normalized on ingest.
func (f *Floats) Put(s Slot, v []float32) error {
	if f.readOnly {
		return ErrReadOnly
	}
	if len(v) != f.dim {
		return &DimensionMismatchError{Expected: f.dim, Actual: len(v)}
	}

	if need := (int(s) + 1) * f.dim; need > len(f.data) {
		f.data = slices.Grow(f.data, need-len(f.data))
		f.data = f.data[:need]
		f.n = int(s) + 1
	}

	dst := f.data[int(s)*f.dim : (int(s)+1)*f.dim]
	copy(dst, v)
	if f.metric.NeedsNormalization() {
		distance.NormalizeL2InPlace(dst)
	}
	return nil
}

// Get returns a view of the vector at s. Callers must not modify it.
func (f *Floats) Get(s Slot) ([]float32, error) {
	if int(s) >= f.n {
		return nil, ErrInvalidSlot
	}
	return f.at(s), nil
}

func (f *Floats) at(s Slot) []float32 {
	off := int(s) * f.stride
	return f.data[off : off+f.dim : off+f.dim]
}

func (f *Floats) Distance(a, b Slot) (float32, error) {
	if int(a) >= f.n || int(b) >= f.n {
		return 0, ErrInvalidSlot
	}
	return f.fn(f.at(a), f.at(b)), nil
}

func (f *Floats) DistanceToQuery(q []float32, s Slot) (float32, error) {
	if int(s) >= f.n {
		return 0, ErrInvalidSlot
	}
	pq, err := prepareQuery(q, f.dim, f.metric)
	if err != nil {
		return 0, err
	}
	return f.fn(pq, f.at(s)), nil
}

func (f *Floats) ForQuery(q []float32) (QueryDistance, error) {
	pq, err := prepareQuery(q, f.dim, f.metric)
	if err != nil {
		return nil, err
	}
	return &floatQuery{f: f, q: pq}, nil
}

type floatQuery struct {
	f *Floats
	q []float32
}

func (fq *floatQuery) Distance(s Slot) float32 {
	return fq.f.fn(fq.q, fq.f.at(s))
}
