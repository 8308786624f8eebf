package vamana

import (
	"context"
	"testing"

	"github.com/hupe1980/vamana/distance"
	"github.com/hupe1980/vamana/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultIDs(res []Result) []uint64 {
	out := make([]uint64, len(res))
	for i, r := range res {
		out[i] = r.ID
	}
	return out
}

// buildIndex stages vectors under their position as id and builds.
func buildIndex(t *testing.T, vectors [][]float32, sets [][]Label, opts ...Option) *Index {
	t.Helper()
	ix, err := New(len(vectors[0]), opts...)
	require.NoError(t, err)
	for i, v := range vectors {
		var ls []Label
		if sets != nil {
			ls = sets[i]
		}
		require.NoError(t, ix.Add(uint64(i), v, ls...))
	}
	require.NoError(t, ix.Build(context.Background()))
	return ix
}

func TestSearchFourPoints(t *testing.T) {
	ctx := context.Background()
	vectors := [][]float32{{0, 0}, {1, 0}, {0, 1}, {10, 10}}
	ix := buildIndex(t, vectors, nil, WithMaxDegree(2), WithSearchListSize(4), WithThreads(1))

	res, err := ix.Search(ctx, []float32{0.1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint64(0), res[0].ID)
	assert.Equal(t, uint64(1), res[1].ID, "equal distances order by slot")
	assert.InDelta(t, 0.02, res[0].Distance, 1e-5)

	res, err = ix.Search(ctx, []float32{0.1, 0.1}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, uint64(0), res[0].ID)
	assert.Equal(t, []uint64{0, 1, 2}, resultIDs(res))
	assert.Equal(t, res[1].Distance, res[2].Distance)

	for s := range 4 {
		assert.LessOrEqual(t, ix.graph.Degree(Slot(s)), 2)
	}
}

func TestFilteredSearchLabels(t *testing.T) {
	const labelA, labelB Label = 1, 2

	vectors := [][]float32{{0, 0}, {1, 0}, {0, 1}, {10, 10}}
	sets := [][]Label{{labelA}, {labelA}, {labelB}, {labelB}}
	ix := buildIndex(t, vectors, sets, WithMaxDegree(2), WithSearchListSize(4), WithFiltered(true))

	res, err := ix.FilteredSearch(context.Background(), []float32{0, 1}, 4, labelA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 1}, resultIDs(res))

	res, err = ix.Search(context.Background(), []float32{0, 0}, 4, WithLabel(labelB))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{2, 3}, resultIDs(res))

	res, err = ix.Search(context.Background(), []float32{0, 0}, 4, WithLabel(99))
	require.NoError(t, err)
	assert.Empty(t, res)

	st := ix.Stats()
	assert.Equal(t, 2, st.EntryPoints)
	assert.Equal(t, 2, st.Labels)
	assert.True(t, st.Filtered)
}

func TestUniversalLabelMatchesEveryFilter(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 0}, {0, 1}}
	sets := [][]Label{{1}, {2}, {DefaultUniversalLabel}}
	ix := buildIndex(t, vectors, sets, WithFiltered(true))

	res, err := ix.FilteredSearch(context.Background(), []float32{0, 0}, 3, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 2}, resultIDs(res))

	noUni := buildIndex(t, vectors, sets, WithFiltered(true), WithoutUniversalLabel())
	res, err = noUni.FilteredSearch(context.Background(), []float32{0, 0}, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, resultIDs(res))
}

func TestExhaustiveSearchListIsExact(t *testing.T) {
	rng := testutil.NewRNG(1)
	vectors := rng.UniformVectors(200, 8)
	ix := buildIndex(t, vectors, nil, WithMaxDegree(16), WithSearchListSize(32), WithThreads(2))

	for _, q := range rng.UniformVectors(10, 8) {
		res, err := ix.Search(context.Background(), q, 5, WithL(len(vectors)))
		require.NoError(t, err)

		truth := testutil.ExactTopK(vectors, q, 5, distance.MetricL2, nil)
		assert.Equal(t, 1.0, testutil.Recall(truth, resultIDs(res)))
	}
}

func TestRecallAndDegreeBound(t *testing.T) {
	const (
		n   = 1000
		dim = 16
		r   = 24
	)
	rng := testutil.NewRNG(7)
	vectors := rng.ClusteredVectors(n, dim, 10, 0.3)
	ix := buildIndex(t, vectors, nil, WithMaxDegree(r), WithSearchListSize(64))

	for s := range n {
		require.LessOrEqual(t, ix.graph.Degree(Slot(s)), r)
	}

	queries := rng.ClusteredVectors(50, dim, 10, 0.3)
	truth := make([][]testutil.Neighbor, len(queries))
	approx := make([][]uint64, len(queries))
	for i, q := range queries {
		truth[i] = testutil.ExactTopK(vectors, q, 10, distance.MetricL2, nil)
		res, err := ix.Search(context.Background(), q, 10, WithL(100))
		require.NoError(t, err)
		approx[i] = resultIDs(res)
	}
	assert.Greater(t, testutil.MeanRecall(truth, approx), 0.9)

	st := ix.Stats()
	assert.Equal(t, n, st.Count)
	assert.LessOrEqual(t, st.MaxObservedDegree, r)
	assert.Greater(t, st.AvgDegree, 1.0)
}

func TestFilteredRecall(t *testing.T) {
	const (
		n   = 600
		dim = 8
	)
	rng := testutil.NewRNG(11)
	vectors := rng.UniformVectors(n, dim)
	sets := make([][]Label, n)
	for i := range sets {
		sets[i] = []Label{Label(i%3 + 1)}
	}
	ix := buildIndex(t, vectors, sets, WithMaxDegree(16), WithSearchListSize(64), WithFiltered(true))

	var truth [][]testutil.Neighbor
	var approx [][]uint64
	for _, q := range rng.UniformVectors(20, dim) {
		for l := Label(1); l <= 3; l++ {
			res, err := ix.FilteredSearch(context.Background(), q, 10, l, WithL(100))
			require.NoError(t, err)
			require.Len(t, res, 10)
			for _, r := range res {
				assert.Equal(t, l, Label(r.ID%3+1))
			}

			accept := func(i int) bool { return Label(i%3+1) == l }
			truth = append(truth, testutil.ExactTopK(vectors, q, 10, distance.MetricL2, accept))
			approx = append(approx, resultIDs(res))
		}
	}
	assert.Greater(t, testutil.MeanRecall(truth, approx), 0.85)
}

func TestSearchWithPQReranks(t *testing.T) {
	rng := testutil.NewRNG(3)
	vectors := rng.UniformVectors(400, 16)
	ix := buildIndex(t, vectors, nil, WithMaxDegree(16), WithSearchListSize(64), WithPQ(4), WithPQCentroids(32))
	assert.Equal(t, 4, ix.Stats().PQChunks)

	queries := rng.UniformVectors(20, 16)
	truth := make([][]testutil.Neighbor, len(queries))
	approx := make([][]uint64, len(queries))
	for i, q := range queries {
		truth[i] = testutil.ExactTopK(vectors, q, 10, distance.MetricL2, nil)
		res, err := ix.Search(context.Background(), q, 10, WithL(150))
		require.NoError(t, err)
		require.Len(t, res, 10)
		for j := 1; j < len(res); j++ {
			assert.LessOrEqual(t, res[j-1].Distance, res[j].Distance)
		}
		approx[i] = resultIDs(res)
	}
	assert.Greater(t, testutil.MeanRecall(truth, approx), 0.7)
}

func TestCosineAndInnerProduct(t *testing.T) {
	rng := testutil.NewRNG(5)
	vectors := rng.UniformRangeVectors(150, 6)

	for _, m := range []distance.Metric{distance.MetricCosine, distance.MetricInnerProduct} {
		t.Run(m.String(), func(t *testing.T) {
			ix := buildIndex(t, vectors, nil, WithMetric(m), WithMaxDegree(12), WithSearchListSize(32))
			q := vectors[17]
			res, err := ix.Search(context.Background(), q, 5, WithL(len(vectors)))
			require.NoError(t, err)

			truth := testutil.ExactTopK(vectors, q, 5, m, nil)
			want := 1.0
			if m == distance.MetricInnerProduct {
				// Low-norm vectors may have no in-edges under inner product.
				want = 0.8
			}
			assert.GreaterOrEqual(t, testutil.Recall(truth, resultIDs(res)), want)
		})
	}
}

func TestSearchStatsAndLRaisedToK(t *testing.T) {
	rng := testutil.NewRNG(9)
	vectors := rng.UniformVectors(100, 4)
	ix := buildIndex(t, vectors, nil, WithMaxDegree(8), WithSearchListSize(8))

	var st SearchStats
	res, err := ix.Search(context.Background(), vectors[0], 20, WithL(5), WithStats(&st))
	require.NoError(t, err)
	assert.Len(t, res, 20)
	assert.Equal(t, uint64(0), res[0].ID)
	assert.Positive(t, st.Hops)
	assert.GreaterOrEqual(t, st.Comparisons, 20)
}

func TestSearchBatch(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 0}, {0, 1}, {10, 10}}
	sets := [][]Label{{1}, {1}, {2}, {2}}
	ix := buildIndex(t, vectors, sets, WithFiltered(true), WithThreads(2))

	out, err := ix.SearchBatch(context.Background(), []Query{
		{Vector: []float32{0, 0}},
		{Vector: []float32{0, 0}, Labels: []Label{2}},
		{Vector: []float32{10, 10}, Labels: []Label{1, 2}},
	}, 1)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []uint64{0}, resultIDs(out[0]))
	assert.Equal(t, []uint64{2}, resultIDs(out[1]))
	assert.Equal(t, []uint64{3}, resultIDs(out[2]))

	_, err = ix.SearchBatch(context.Background(), []Query{{Vector: []float32{1}}}, 1)
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
}

func TestSearchBatchStatsPerQuery(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(21)
	ix := buildIndex(t, rng.UniformVectors(500, 8), nil, WithMaxDegree(16), WithThreads(4))

	queries := rng.UniformVectors(40, 8)
	stats := make([]SearchStats, len(queries))
	batch := make([]Query, len(queries))
	for i, q := range queries {
		batch[i] = Query{Vector: q, Stats: &stats[i]}
	}

	var shared SearchStats
	out, err := ix.SearchBatch(ctx, batch, 5, WithL(32), WithStats(&shared))
	require.NoError(t, err)
	assert.Zero(t, shared, "batch searches report through Query.Stats only")

	for i, q := range queries {
		var want SearchStats
		res, err := ix.Search(ctx, q, 5, WithL(32), WithStats(&want))
		require.NoError(t, err)
		assert.Equal(t, resultIDs(res), resultIDs(out[i]))
		assert.Equal(t, want.Hops, stats[i].Hops, "query %d", i)
		assert.Equal(t, want.Comparisons, stats[i].Comparisons, "query %d", i)
		assert.Positive(t, stats[i].Latency)
	}
}

func TestDeterministicSingleThreadedBuild(t *testing.T) {
	rng := testutil.NewRNG(13)
	vectors := rng.UniformVectors(300, 8)
	opts := []Option{WithMaxDegree(12), WithSearchListSize(24), WithThreads(1), WithSeed(99)}

	a := buildIndex(t, vectors, nil, opts...)
	b := buildIndex(t, vectors, nil, opts...)

	assert.Equal(t, a.medoid, b.medoid)
	for s := range len(vectors) {
		assert.Equal(t, a.graph.Neighbors(Slot(s)), b.graph.Neighbors(Slot(s)))
	}
}

func TestBuildEdgeCases(t *testing.T) {
	ctx := context.Background()

	empty, err := New(3)
	require.NoError(t, err)
	require.NoError(t, empty.Build(ctx))
	res, err := empty.Search(ctx, []float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	single := buildIndex(t, [][]float32{{1, 1}}, nil)
	res, err = single.Search(ctx, []float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, resultIDs(res))
	assert.Equal(t, 0, single.graph.Degree(0))
}

func TestBuildCanceled(t *testing.T) {
	rng := testutil.NewRNG(17)
	ix, err := New(4)
	require.NoError(t, err)
	for i, v := range rng.UniformVectors(200, 4) {
		require.NoError(t, ix.Add(uint64(i), v))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ix.Build(ctx), context.Canceled)

	_, err = ix.Search(context.Background(), []float32{0, 0, 0, 0}, 1)
	require.ErrorIs(t, err, ErrNotBuilt)
}

func TestBuildOutOfMemory(t *testing.T) {
	rc := NewResourceController(ResourceConfig{MemoryLimitBytes: 64})
	ix, err := New(2, WithResourceController(rc))
	require.NoError(t, err)
	for i := range 10 {
		require.NoError(t, ix.Add(uint64(i), []float32{float32(i), 0}))
	}

	require.ErrorIs(t, ix.Build(context.Background()), ErrOutOfMemory)
	assert.Zero(t, rc.MemoryUsage())
	assert.False(t, ix.Stats().Built)
}

func TestBuildReservesMemory(t *testing.T) {
	rc := NewResourceController(ResourceConfig{MemoryLimitBytes: 1 << 30})
	rng := testutil.NewRNG(19)
	ix := buildIndex(t, rng.UniformVectors(50, 4), nil, WithResourceController(rc))

	assert.Positive(t, rc.MemoryUsage())
	assert.Equal(t, rc.MemoryUsage(), ix.Stats().MemoryReserved)
	require.NoError(t, ix.Close())
	assert.Zero(t, rc.MemoryUsage())
}

func TestErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(0)
	var invalid *ErrInvalidDimension
	require.ErrorAs(t, err, &invalid)

	_, err = New(4, WithAlpha(0.5))
	require.ErrorIs(t, err, ErrInvalidOption)
	_, err = New(4, WithPQ(8))
	require.ErrorIs(t, err, ErrInvalidOption)

	ix, err := New(2)
	require.NoError(t, err)

	var dm *ErrDimensionMismatch
	require.ErrorAs(t, ix.Add(1, []float32{1, 2, 3}), &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)

	require.NoError(t, ix.Add(1, []float32{1, 2}))
	require.ErrorIs(t, ix.Add(1, []float32{3, 4}), ErrDuplicateID)

	_, err = ix.Search(ctx, []float32{1, 2}, 1)
	require.ErrorIs(t, err, ErrNotBuilt)
	require.ErrorIs(t, ix.Insert(ctx, 2, []float32{1, 2}), ErrNotBuilt)

	require.NoError(t, ix.Build(ctx))
	require.ErrorIs(t, ix.Build(ctx), ErrAlreadyBuilt)
	require.ErrorIs(t, ix.Add(3, []float32{1, 2}), ErrAlreadyBuilt)

	_, err = ix.Search(ctx, []float32{1, 2}, 0)
	require.ErrorIs(t, err, ErrInvalidK)
	_, err = ix.Search(ctx, []float32{1}, 1)
	require.ErrorAs(t, err, &dm)

	require.NoError(t, ix.Close())
	require.NoError(t, ix.Close())
	_, err = ix.Search(ctx, []float32{1, 2}, 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()
	mc := &BasicMetricsCollector{}
	ix := buildIndex(t, [][]float32{{0, 0}, {1, 1}, {2, 2}}, nil, WithMetricsCollector(mc))

	_, err := ix.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	_, err = ix.Search(ctx, []float32{0, 0}, 0)
	require.Error(t, err)
	require.NoError(t, ix.Insert(ctx, 10, []float32{3, 3}))
	require.NoError(t, ix.Delete(ctx, 10))

	st := mc.GetStats()
	assert.Equal(t, int64(1), st.BuildCount)
	assert.Equal(t, int64(3), st.BuildSlots)
	assert.Equal(t, int64(2), st.SearchCount)
	assert.Equal(t, int64(1), st.SearchErrors)
	assert.Equal(t, int64(1), st.InsertCount)
	assert.Equal(t, int64(1), st.DeleteCount)
}
