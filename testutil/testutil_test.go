package testutil

import (
	"math"
	"testing"

	"github.com/hupe1980/vamana/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformVectors(t *testing.T) {
	v := NewRNG(4711).UniformVectors(8, 32)
	require.Len(t, v, 8)
	require.Len(t, v[0], 32)
	for _, vec := range v {
		for _, x := range vec {
			assert.GreaterOrEqual(t, x, float32(0))
			assert.Less(t, x, float32(1))
		}
	}
}

func TestUnitVectors(t *testing.T) {
	for _, vec := range NewRNG(4711).UnitVectors(8, 32) {
		assert.InDelta(t, 1.0, distance.Dot(vec, vec), 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	v := NewRNG(4711).ClusteredVectors(100, 16, 5, 0.01)
	require.Len(t, v, 100)
	// Members of one cluster are much closer than members of different ones.
	assert.Less(t, distance.SquaredL2(v[0], v[5]), distance.SquaredL2(v[0], v[1]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	a := rng.UniformVectors(1, 10)
	rng.Reset()
	b := rng.UniformVectors(1, 10)
	assert.Equal(t, a, b)
}

func TestLabels(t *testing.T) {
	sets := NewRNG(1).Labels(200, 10, 3, 1.5)
	require.Len(t, sets, 200)
	for _, s := range sets {
		require.NotEmpty(t, s)
		assert.LessOrEqual(t, len(s), 3)
		for i, l := range s {
			assert.Less(t, l, uint32(10))
			if i > 0 {
				assert.Less(t, s[i-1], l)
			}
		}
	}
}

func TestExactTopK(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 0}, {0, 2}, {3, 3}}

	got := ExactTopK(vectors, []float32{0.9, 0}, 2, distance.MetricL2, nil)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].ID)
	assert.Equal(t, uint64(0), got[1].ID)

	odd := ExactTopK(vectors, []float32{0, 0}, 10, distance.MetricL2, func(i int) bool { return i%2 == 1 })
	require.Len(t, odd, 2)
	assert.Equal(t, uint64(1), odd[0].ID)
	assert.Equal(t, uint64(3), odd[1].ID)

	cos := ExactTopK([][]float32{{10, 0}, {0, 1}}, []float32{1, 0}, 1, distance.MetricCosine, nil)
	assert.Equal(t, uint64(0), cos[0].ID)
	assert.InDelta(t, 0, cos[0].Distance, 1e-6)
}

func TestRecall(t *testing.T) {
	truth := []Neighbor{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	assert.InDelta(t, 0.5, Recall(truth, []uint64{1, 9, 3, 8}), 1e-9)
	assert.InDelta(t, 1.0, Recall(truth[:2], []uint64{2, 1, 7}), 1e-9)
	assert.InDelta(t, 1.0, Recall(nil, nil), 1e-9)
	assert.InDelta(t, 0.0, Recall(truth, nil), 1e-9)

	assert.InDelta(t, 0.75, MeanRecall([][]Neighbor{truth, truth}, [][]uint64{{1, 2, 3, 4}, {1, 2, 0, 0}}), 1e-9)
	assert.True(t, math.IsNaN(MeanRecall(nil, nil)))
}
