package quantization

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"github.com/hupe1980/vamana/distance"
	"github.com/hupe1980/vamana/internal/kmeans"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MaxCentroids is the largest codebook a single code byte can address.
const MaxCentroids = 256

var (
	// ErrNotTrained is returned when encoding or distance evaluation is
	// requested before Train or SetCodebooks.
	ErrNotTrained = errors.New("quantization: product quantizer not trained")
	// ErrInvalidCode is returned for a code whose length is not M.
	ErrInvalidCode = errors.New("quantization: invalid code length")
)

// DimensionMismatchError reports an input vector of the wrong length.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("quantization: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

type pqConfig struct {
	sampleSize int
	iterations int
	seed       uint64
	workers    int
}

// PQOption configures a ProductQuantizer.
type PQOption func(*pqConfig)

// WithTrainSampleSize bounds the number of vectors used for training.
func WithTrainSampleSize(n int) PQOption {
	return func(c *pqConfig) {
		if n > 0 {
			c.sampleSize = n
		}
	}
}

// WithIterations sets the k-means iteration budget per chunk.
func WithIterations(n int) PQOption {
	return func(c *pqConfig) {
		if n > 0 {
			c.iterations = n
		}
	}
}

// WithSeed fixes sampling and k-means initialization.
func WithSeed(seed uint64) PQOption {
	return func(c *pqConfig) { c.seed = seed }
}

// WithWorkers bounds the number of chunks trained concurrently.
func WithWorkers(n int) PQOption {
	return func(c *pqConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// ProductQuantizer implements Product Quantization (PQ).
// PQ splits vectors into M contiguous chunks and replaces each chunk with the
// index of its nearest codebook center, giving an M-byte code.
//
// Example: 128-dim vector with M=16 chunks -> 16 bytes (32x compression vs float32).
//
// A trained quantizer is immutable; retraining replaces every codebook.
type ProductQuantizer struct {
	dim       int
	m         int
	k         int
	bounds    []int       // chunk j covers dims [bounds[j], bounds[j+1])
	codebooks [][]float32 // per chunk: k * chunkDim centers
	trained   bool
	cfg       pqConfig
}

// NewProductQuantizer creates a quantizer for dim-dimensional vectors split
// into m chunks with up to k centers each. When dim is not a multiple of m,
// the last chunk absorbs the remainder.
func NewProductQuantizer(dim, m, k int, opts ...PQOption) (*ProductQuantizer, error) {
	if dim <= 0 || m <= 0 {
		return nil, errors.New("quantization: dimension and chunk count must be positive")
	}
	if m > dim {
		return nil, fmt.Errorf("quantization: %d chunks exceed dimension %d", m, dim)
	}
	if k <= 0 || k > MaxCentroids {
		return nil, fmt.Errorf("quantization: centroid count must be in [1, %d]", MaxCentroids)
	}

	cfg := pqConfig{
		sampleSize: 100_000,
		iterations: 15,
		seed:       42,
		workers:    runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(&cfg)
	}

	chunk := dim / m
	bounds := make([]int, m+1)
	for j := range m {
		bounds[j] = j * chunk
	}
	bounds[m] = dim

	return &ProductQuantizer{
		dim:    dim,
		m:      m,
		k:      k,
		bounds: bounds,
		cfg:    cfg,
	}, nil
}

// Dim returns the input dimensionality.
func (pq *ProductQuantizer) Dim() int { return pq.dim }

// M returns the number of chunks, which is also the code length.
func (pq *ProductQuantizer) M() int { return pq.m }

// K returns the number of centers per chunk. After training it may be lower
// than requested when fewer training vectors were available.
func (pq *ProductQuantizer) K() int { return pq.k }

// IsTrained reports whether codebooks are available.
func (pq *ProductQuantizer) IsTrained() bool { return pq.trained }

// ChunkBounds returns the start offset of every chunk plus the dimension.
func (pq *ProductQuantizer) ChunkBounds() []int { return pq.bounds }

// Train learns one codebook per chunk from a sample of vectors.
func (pq *ProductQuantizer) Train(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("quantization: no vectors provided for training")
	}
	for _, v := range vectors {
		if len(v) != pq.dim {
			return &DimensionMismatchError{Expected: pq.dim, Actual: len(v)}
		}
	}

	sample := vectors
	if len(sample) > pq.cfg.sampleSize {
		rng := rand.New(rand.NewPCG(pq.cfg.seed, 0x5eed))
		perm := rng.Perm(len(vectors))[:pq.cfg.sampleSize]
		sample = make([][]float32, len(perm))
		for i, p := range perm {
			sample[i] = vectors[p]
		}
	}

	k := min(pq.k, len(sample))
	codebooks := make([][]float32, pq.m)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pq.cfg.workers)
	for j := range pq.m {
		g.Go(func() error {
			lo, hi := pq.bounds[j], pq.bounds[j+1]
			sub := hi - lo

			flat := make([]float32, len(sample)*sub)
			for i, v := range sample {
				copy(flat[i*sub:(i+1)*sub], v[lo:hi])
			}

			centers, err := kmeans.TrainKMeans(gctx, flat, sub, k, distance.MetricL2, pq.cfg.iterations,
				kmeans.WithSeed(pq.cfg.seed+uint64(j)), kmeans.WithWorkers(1))
			if err != nil {
				return fmt.Errorf("quantization: chunk %d: %w", j, err)
			}
			codebooks[j] = centers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	pq.k = k
	pq.codebooks = codebooks
	pq.trained = true
	return nil
}

// Encode quantizes a vector into an M-byte code.
func (pq *ProductQuantizer) Encode(v []float32) ([]byte, error) {
	code := make([]byte, pq.m)
	if err := pq.EncodeInto(code, v); err != nil {
		return nil, err
	}
	return code, nil
}

// EncodeInto quantizes v into dst, which must have length M.
func (pq *ProductQuantizer) EncodeInto(dst []byte, v []float32) error {
	if !pq.trained {
		return ErrNotTrained
	}
	if len(v) != pq.dim {
		return &DimensionMismatchError{Expected: pq.dim, Actual: len(v)}
	}
	if len(dst) != pq.m {
		return ErrInvalidCode
	}

	for j := range pq.m {
		lo, hi := pq.bounds[j], pq.bounds[j+1]
		sub := hi - lo
		cb := pq.codebooks[j]

		best := 0
		bestDist := distance.SquaredL2(v[lo:hi], cb[:sub])
		for c := 1; c < pq.k; c++ {
			d := distance.SquaredL2(v[lo:hi], cb[c*sub:(c+1)*sub])
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		dst[j] = byte(best)
	}
	return nil
}

// Decode reconstructs the approximate vector a code stands for.
func (pq *ProductQuantizer) Decode(code []byte) ([]float32, error) {
	out := make([]float32, pq.dim)
	if err := pq.DecodeInto(out, code); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeInto reconstructs code into dst, which must have length Dim.
func (pq *ProductQuantizer) DecodeInto(dst []float32, code []byte) error {
	if !pq.trained {
		return ErrNotTrained
	}
	if len(code) != pq.m {
		return ErrInvalidCode
	}
	if len(dst) != pq.dim {
		return &DimensionMismatchError{Expected: pq.dim, Actual: len(dst)}
	}

	for j := range pq.m {
		lo, hi := pq.bounds[j], pq.bounds[j+1]
		sub := hi - lo
		c := int(code[j])
		if c >= pq.k {
			return ErrInvalidCode
		}
		copy(dst[lo:hi], pq.codebooks[j][c*sub:(c+1)*sub])
	}
	return nil
}

// DistanceTable holds per-query distances from every chunk of the query to
// every center of that chunk. Distance sums M look-ups.
type DistanceTable struct {
	m     int
	k     int
	table []float32
	bias  float32
}

// BuildDistanceTable precomputes the asymmetric distance table of query q.
// For cosine the query must already be unit length.
func (pq *ProductQuantizer) BuildDistanceTable(q []float32, metric distance.Metric) (*DistanceTable, error) {
	if !pq.trained {
		return nil, ErrNotTrained
	}
	if len(q) != pq.dim {
		return nil, &DimensionMismatchError{Expected: pq.dim, Actual: len(q)}
	}

	dt := &DistanceTable{m: pq.m, k: pq.k, table: make([]float32, pq.m*pq.k)}

	switch metric {
	case distance.MetricL2:
		for j := range pq.m {
			lo, hi := pq.bounds[j], pq.bounds[j+1]
			sub := hi - lo
			cb := pq.codebooks[j]
			row := dt.table[j*pq.k : (j+1)*pq.k]
			for c := range pq.k {
				row[c] = distance.SquaredL2(q[lo:hi], cb[c*sub:(c+1)*sub])
			}
		}
	case distance.MetricInnerProduct, distance.MetricCosine:
		// row = -(C_j · q_j): negative dot products of every center with the
		// query chunk, one Gemv per chunk.
		for j := range pq.m {
			lo, hi := pq.bounds[j], pq.bounds[j+1]
			sub := hi - lo
			row := dt.table[j*pq.k : (j+1)*pq.k]
			blas32.Gemv(blas.NoTrans, -1,
				blas32.General{Rows: pq.k, Cols: sub, Stride: sub, Data: pq.codebooks[j]},
				blas32.Vector{N: sub, Inc: 1, Data: q[lo:hi]},
				0,
				blas32.Vector{N: pq.k, Inc: 1, Data: row},
			)
		}
		if metric == distance.MetricCosine {
			dt.bias = 1
		}
	default:
		return nil, fmt.Errorf("quantization: unsupported metric %v", metric)
	}

	return dt, nil
}

// Distance returns the approximate distance between the table's query and
// the vector encoded by code. The code length is not checked.
func (dt *DistanceTable) Distance(code []byte) float32 {
	sum := dt.bias
	k := dt.k
	for j, c := range code[:dt.m] {
		sum += dt.table[j*k+int(c)]
	}
	return sum
}

// BytesPerVector returns the compressed size per vector in bytes.
func (pq *ProductQuantizer) BytesPerVector() int {
	return pq.m
}

// CompressionRatio returns the theoretical compression ratio versus float32.
func (pq *ProductQuantizer) CompressionRatio() float64 {
	return float64(pq.dim*4) / float64(pq.m)
}

// Codebooks returns the trained codebooks, one flat k*chunkDim slice per chunk.
func (pq *ProductQuantizer) Codebooks() [][]float32 {
	return pq.codebooks
}

// SetCodebooks installs previously trained codebooks with k centers each.
func (pq *ProductQuantizer) SetCodebooks(codebooks [][]float32, k int) error {
	if len(codebooks) != pq.m {
		return fmt.Errorf("quantization: expected %d codebooks, got %d", pq.m, len(codebooks))
	}
	if k <= 0 || k > MaxCentroids {
		return fmt.Errorf("quantization: centroid count must be in [1, %d]", MaxCentroids)
	}
	for j, cb := range codebooks {
		sub := pq.bounds[j+1] - pq.bounds[j]
		if len(cb) != k*sub {
			return fmt.Errorf("quantization: codebook %d has %d values, want %d", j, len(cb), k*sub)
		}
	}

	pq.codebooks = codebooks
	pq.k = k
	pq.trained = true
	return nil
}
