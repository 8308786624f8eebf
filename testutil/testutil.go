package testutil

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hupe1980/vamana/distance"
)

// Neighbor is one exact nearest neighbor.
type Neighbor struct {
	ID       uint64
	Distance float32
}

// RNG is a seeded, goroutine-safe generator of test data.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed uint64
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed: seed}
}

// Reset rewinds the generator to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewPCG(r.seed, r.seed^0x9e3779b97f4a7c15))
}

// IntN returns a value in [0, n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Float32 returns a value in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// fill returns num vectors sharing one backing array, each filled by gen.
func (r *RNG) fill(num, dim int, gen func() float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	out := make([][]float32, num)
	for i := range num {
		v := data[i*dim : (i+1)*dim : (i+1)*dim]
		for j := range v {
			v[j] = gen()
		}
		out[i] = v
	}
	return out
}

// UniformVectors returns vectors with values in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	return r.fill(num, dim, func() float32 { return r.rand.Float32() })
}

// UniformRangeVectors returns vectors with values in [-1, 1).
func (r *RNG) UniformRangeVectors(num, dim int) [][]float32 {
	return r.fill(num, dim, func() float32 { return r.rand.Float32()*2 - 1 })
}

// GaussianVectors returns vectors with standard normal values.
func (r *RNG) GaussianVectors(num, dim int) [][]float32 {
	return r.fill(num, dim, func() float32 { return float32(r.rand.NormFloat64()) })
}

// UnitVectors returns vectors uniformly distributed on the unit sphere.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	out := r.GaussianVectors(num, dim)
	for _, v := range out {
		if !distance.NormalizeL2InPlace(v) {
			v[0] = 1
		}
	}
	return out
}

// ClusteredVectors returns vectors scattered with Gaussian noise of the
// given spread around clusters random unit centers. Vector i belongs to
// cluster i % clusters.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centers := r.UnitVectors(clusters, dim)
	out := r.GaussianVectors(num, dim)
	for i, v := range out {
		c := centers[i%clusters]
		for j := range v {
			v[j] = c[j] + v[j]*spread
		}
	}
	return out
}

// Labels draws one label set per vector. Each set holds between 1 and
// maxPerVector distinct labels in [0, numLabels), skewed toward low labels
// by a Zipf distribution with exponent s (> 1).
func (r *RNG) Labels(num, numLabels, maxPerVector int, s float64) [][]uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	z := rand.NewZipf(r.rand, s, 1, uint64(numLabels-1))
	out := make([][]uint32, num)
	for i := range out {
		n := 1 + r.rand.IntN(maxPerVector)
		set := make([]uint32, 0, n)
		for range n {
			l := uint32(z.Uint64())
			if !slices.Contains(set, l) {
				set = append(set, l)
			}
		}
		slices.Sort(set)
		out[i] = set
	}
	return out
}

// ExactTopK returns the k nearest vectors to q under metric by brute force.
// IDs are vector positions. With accept set, only positions it accepts are
// considered. Ties are broken by the lower ID.
func ExactTopK(vectors [][]float32, q []float32, k int, metric distance.Metric, accept func(i int) bool) []Neighbor {
	fn, err := distance.Provider(metric)
	if err != nil {
		panic(err)
	}
	norm := func(v []float32) []float32 {
		if metric.NeedsNormalization() {
			if n, ok := distance.NormalizeL2Copy(v); ok {
				return n
			}
		}
		return v
	}
	query := norm(q)

	all := make([]Neighbor, 0, len(vectors))
	for i, v := range vectors {
		if accept != nil && !accept(i) {
			continue
		}
		all = append(all, Neighbor{ID: uint64(i), Distance: fn(query, norm(v))})
	}
	slices.SortFunc(all, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return all[:min(k, len(all))]
}

// Recall returns the share of the first k truth IDs found in approx, where
// k = min(len(truth), len(approx)). Two empty lists have recall 1.
func Recall(truth []Neighbor, approx []uint64) float64 {
	if len(truth) == 0 || len(approx) == 0 {
		if len(truth) == len(approx) {
			return 1
		}
		return 0
	}
	k := min(len(truth), len(approx))
	want := make(map[uint64]struct{}, k)
	for _, n := range truth[:k] {
		want[n.ID] = struct{}{}
	}
	hits := 0
	for _, id := range approx[:k] {
		if _, ok := want[id]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

// MeanRecall averages Recall over several queries.
func MeanRecall(truth [][]Neighbor, approx [][]uint64) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := range truth {
		sum += Recall(truth[i], approx[i])
	}
	return sum / float64(len(truth))
}
