package vectorstore

import (
	"slices"

	"github.com/hupe1980/vamana/distance"
	"github.com/hupe1980/vamana/internal/quantization"
)

// Codes stores PQ codes and computes asymmetric distances from them.
//
// Code i lives at data[i*stride : i*stride+M]; the stride may exceed M when
// the view is a mapped record section.
type Codes struct {
	pq       *quantization.ProductQuantizer
	metric   distance.Metric
	fn       distance.Func
	stride   int
	n        int
	data     []byte
	readOnly bool
}

var _ Store = (*Codes)(nil)

// NewCodes creates an empty in-memory code store over a trained quantizer.
func NewCodes(pq *quantization.ProductQuantizer, metric distance.Metric, capacity int) (*Codes, error) {
	if !pq.IsTrained() {
		return nil, quantization.ErrNotTrained
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	return &Codes{
		pq:     pq,
		metric: metric,
		fn:     fn,
		stride: pq.M(),
		data:   make([]byte, 0, max(capacity, 0)*pq.M()),
	}, nil
}

// NewMappedCodes wraps a read-only view holding n codes spaced stride bytes apart.
func NewMappedCodes(pq *quantization.ProductQuantizer, view []byte, stride, n int, metric distance.Metric) (*Codes, error) {
	if !pq.IsTrained() {
		return nil, quantization.ErrNotTrained
	}
	if stride < pq.M() || (n > 0 && len(view) < (n-1)*stride+pq.M()) {
		return nil, ErrInvalidSlot
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	return &Codes{
		pq:       pq,
		metric:   metric,
		fn:       fn,
		stride:   stride,
		n:        n,
		data:     view,
		readOnly: true,
	}, nil
}

func (c *Codes) Dim() int                { return c.pq.Dim() }
func (c *Codes) Len() int                { return c.n }
func (c *Codes) Metric() distance.Metric { return c.metric }

// Quantizer returns the codec the codes were produced with.
func (c *Codes) Quantizer() *quantization.ProductQuantizer { return c.pq }

// Put encodes v and stores the code at slot s.
func (c *Codes) Put(s Slot, v []float32) error {
	if c.readOnly {
		return ErrReadOnly
	}
	if len(v) != c.pq.Dim() {
		return &DimensionMismatchError{Expected: c.pq.Dim(), Actual: len(v)}
	}

	if c.metric.NeedsNormalization() {
		if n, ok := distance.NormalizeL2Copy(v); ok {
			v = n
		}
	}

	m := c.pq.M()
	if need := (int(s) + 1) * m; need > len(c.data) {
		c.data = slices.Grow(c.data, need-len(c.data))
		c.data = c.data[:need]
		c.n = int(s) + 1
	}
	return c.pq.EncodeInto(c.data[int(s)*m:(int(s)+1)*m], v)
}

// PutCode stores an already encoded code at slot s.
func (c *Codes) PutCode(s Slot, code []byte) error {
	if c.readOnly {
		return ErrReadOnly
	}
	m := c.pq.M()
	if len(code) != m {
		return quantization.ErrInvalidCode
	}
	if need := (int(s) + 1) * m; need > len(c.data) {
		c.data = slices.Grow(c.data, need-len(c.data))
		c.data = c.data[:need]
		c.n = int(s) + 1
	}
	copy(c.data[int(s)*m:], code)
	return nil
}

// Code returns the raw code stored at s. Callers must not modify it.
func (c *Codes) Code(s Slot) ([]byte, error) {
	if int(s) >= c.n {
		return nil, ErrInvalidSlot
	}
	return c.at(s), nil
}

func (c *Codes) at(s Slot) []byte {
	off := int(s) * c.stride
	m := c.pq.M()
	return c.data[off : off+m : off+m]
}

// Get decodes the code at s into a fresh vector.
func (c *Codes) Get(s Slot) ([]float32, error) {
	if int(s) >= c.n {
		return nil, ErrInvalidSlot
	}
	return c.pq.Decode(c.at(s))
}

// Distance compares the decoded approximations of both slots.
func (c *Codes) Distance(a, b Slot) (float32, error) {
	va, err := c.Get(a)
	if err != nil {
		return 0, err
	}
	vb, err := c.Get(b)
	if err != nil {
		return 0, err
	}
	return c.fn(va, vb), nil
}

func (c *Codes) DistanceToQuery(q []float32, s Slot) (float32, error) {
	if int(s) >= c.n {
		return 0, ErrInvalidSlot
	}
	qd, err := c.ForQuery(q)
	if err != nil {
		return 0, err
	}
	return qd.Distance(s), nil
}

// ForQuery builds the query's PQ distance table.
func (c *Codes) ForQuery(q []float32) (QueryDistance, error) {
	pq, err := prepareQuery(q, c.pq.Dim(), c.metric)
	if err != nil {
		return nil, err
	}
	dt, err := c.pq.BuildDistanceTable(pq, c.metric)
	if err != nil {
		return nil, err
	}
	return &codeQuery{c: c, dt: dt}, nil
}

type codeQuery struct {
	c  *Codes
	dt *quantization.DistanceTable
}

func (cq *codeQuery) Distance(s Slot) float32 {
	return cq.dt.Distance(cq.c.at(s))
}
