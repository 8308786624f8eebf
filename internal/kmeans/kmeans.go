package kmeans

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/hupe1980/vamana/distance"
	"golang.org/x/sync/errgroup"
)

// ErrTooFewVectors is returned when there are fewer training vectors than clusters.
var ErrTooFewVectors = errors.New("kmeans: fewer vectors than clusters")

// parallelThreshold is the number of vectors below which assignment runs on
// the calling goroutine.
const parallelThreshold = 4096

type config struct {
	seed    uint64
	workers int
}

// Option configures TrainKMeans.
type Option func(*config)

// WithSeed fixes the seed used for k-means++ initialization and empty-cluster
// reseeding. Training with the same seed over the same input is deterministic.
func WithSeed(seed uint64) Option {
	return func(c *config) { c.seed = seed }
}

// WithWorkers bounds the goroutines used for the assignment step.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// TrainKMeans trains k centroids from the given vectors using Lloyd's algorithm
// with k-means++ initialization. vectors is a flat n*dim slice.
// It returns the flattened centroids (k * dim).
//
// The context is checked once per iteration.
func TrainKMeans(ctx context.Context, vectors []float32, dim int, k int, metric distance.Metric, maxIter int, opts ...Option) ([]float32, error) {
	cfg := config{seed: 1, workers: runtime.GOMAXPROCS(0)}
	for _, o := range opts {
		o(&cfg)
	}

	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}
	if dim <= 0 || k <= 0 {
		return nil, errors.New("kmeans: dim and k must be positive")
	}

	n := len(vectors) / dim
	if n < k {
		return nil, ErrTooFewVectors
	}

	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	centroids := initPlusPlus(vectors, dim, k, rng)

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float64, k*dim)

	for range maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed, err := assign(ctx, vectors, dim, centroids, assignments, distFunc, cfg.workers)
		if err != nil {
			return nil, err
		}
		if !changed {
			break
		}

		clear(sums)
		clear(counts)
		for i := range n {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			row := sums[c*dim : (c+1)*dim]
			for d, v := range vec {
				row[d] += float64(v)
			}
			counts[c]++
		}

		for j := range k {
			center := centroids[j*dim : (j+1)*dim]
			if counts[j] == 0 {
				idx := rng.IntN(n)
				copy(center, vectors[idx*dim:(idx+1)*dim])
				continue
			}
			inv := 1 / float64(counts[j])
			row := sums[j*dim : (j+1)*dim]
			for d := range center {
				center[d] = float32(row[d] * inv)
			}
		}
	}

	return centroids, nil
}

// initPlusPlus picks k initial centers with probability proportional to the
// squared distance to the nearest center chosen so far.
func initPlusPlus(vectors []float32, dim, k int, rng *rand.Rand) []float32 {
	n := len(vectors) / dim
	centroids := make([]float32, k*dim)

	first := rng.IntN(n)
	copy(centroids[:dim], vectors[first*dim:(first+1)*dim])

	minDist := make([]float32, n)
	var sum float64
	for i := range n {
		d := distance.SquaredL2(vectors[i*dim:(i+1)*dim], centroids[:dim])
		minDist[i] = d
		sum += float64(d)
	}

	for c := 1; c < k; c++ {
		chosen := rng.IntN(n)
		if sum > 0 {
			target := rng.Float64() * sum
			var acc float64
			for i, d := range minDist {
				acc += float64(d)
				if acc >= target {
					chosen = i
					break
				}
			}
		}

		center := centroids[c*dim : (c+1)*dim]
		copy(center, vectors[chosen*dim:(chosen+1)*dim])

		sum = 0
		for i := range n {
			d := distance.SquaredL2(vectors[i*dim:(i+1)*dim], center)
			if d < minDist[i] {
				minDist[i] = d
			}
			sum += float64(minDist[i])
		}
	}

	return centroids
}

func assign(ctx context.Context, vectors []float32, dim int, centroids []float32, assignments []int, distFunc distance.Func, workers int) (bool, error) {
	n := len(assignments)

	run := func(lo, hi int) bool {
		changed := false
		for i := lo; i < hi; i++ {
			best := nearest(vectors[i*dim:(i+1)*dim], centroids, dim, distFunc)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		return changed
	}

	if n < parallelThreshold || workers <= 1 {
		return run(0, n), nil
	}

	chunk := (n + workers - 1) / workers
	flags := make([]bool, workers)

	g, _ := errgroup.WithContext(ctx)
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			flags[w] = run(lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, f := range flags {
		if f {
			return true, nil
		}
	}
	return false, nil
}

func nearest(vec []float32, centroids []float32, dim int, distFunc distance.Func) int {
	best := 0
	minDist := float32(math.MaxFloat32)
	k := len(centroids) / dim
	for j := range k {
		d := distFunc(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

// AssignPartition finds the closest centroid for a vector.
func AssignPartition(vec []float32, centroids []float32, dim int, metric distance.Metric) (int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return -1, err
	}
	if len(centroids) < dim {
		return -1, errors.New("kmeans: no centroids")
	}
	return nearest(vec, centroids, dim, distFunc), nil
}
