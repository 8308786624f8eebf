package vectorstore

import (
	"context"
	"testing"

	"github.com/hupe1980/vamana/distance"
	"github.com/hupe1980/vamana/internal/quantization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloatsPutGetDistance(t *testing.T) {
	s, err := NewFloats(2, distance.MetricL2, 4)
	require.NoError(t, err)

	require.NoError(t, s.Put(0, []float32{0, 0}))
	require.NoError(t, s.Put(1, []float32{3, 4}))
	assert.Equal(t, 2, s.Len())

	v, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, v)

	d, err := s.Distance(0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 25, d, 1e-6)

	d, err = s.DistanceToQuery([]float32{3, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 16, d, 1e-6)

	qd, err := s.ForQuery([]float32{0, 4})
	require.NoError(t, err)
	assert.InDelta(t, 16, qd.Distance(0), 1e-6)
	assert.InDelta(t, 9, qd.Distance(1), 1e-6)
}

func TestFloatsSparsePutGrows(t *testing.T) {
	s, err := NewFloats(3, distance.MetricL2, 0)
	require.NoError(t, err)

	require.NoError(t, s.Put(4, []float32{1, 2, 3}))
	assert.Equal(t, 5, s.Len())

	v, err := s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, v)

	// Overwrite replaces the record wholesale.
	require.NoError(t, s.Put(4, []float32{7, 8, 9}))
	v, err = s.Get(4)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 8, 9}, v)
}

func TestFloatsErrors(t *testing.T) {
	_, err := NewFloats(0, distance.MetricL2, 0)
	require.ErrorIs(t, err, ErrInvalidDimension)

	s, err := NewFloats(2, distance.MetricL2, 0)
	require.NoError(t, err)

	var dm *DimensionMismatchError
	require.ErrorAs(t, s.Put(0, []float32{1, 2, 3}), &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)

	_, err = s.ForQuery([]float32{1})
	require.ErrorAs(t, err, &dm)

	_, err = s.Get(0)
	require.ErrorIs(t, err, ErrInvalidSlot)
	_, err = s.Distance(0, 1)
	require.ErrorIs(t, err, ErrInvalidSlot)
}

func TestFloatsCosineNormalizes(t *testing.T) {
	s, err := NewFloats(2, distance.MetricCosine, 0)
	require.NoError(t, err)

	in := []float32{0, 5}
	require.NoError(t, s.Put(0, in))
	assert.Equal(t, []float32{0, 5}, in)

	v, err := s.Get(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v[1], 1e-6)

	d, err := s.DistanceToQuery([]float32{0, 100}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-6)
}

func TestMappedFloatsStride(t *testing.T) {
	// Two records of stride 4 holding 2-dim vectors plus padding.
	view := []float32{1, 2, -1, -1, 3, 4, -1, -1}
	s, err := NewMappedFloats(view, 2, 4, 2, distance.MetricL2)
	require.NoError(t, err)

	v, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, v)

	d, err := s.Distance(0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 8, d, 1e-6)

	require.ErrorIs(t, s.Put(0, []float32{0, 0}), ErrReadOnly)

	_, err = NewMappedFloats(view, 2, 4, 3, distance.MetricL2)
	require.ErrorIs(t, err, ErrInvalidSlot)
}

func trainedPQ(t *testing.T, vectors [][]float32) *quantization.ProductQuantizer {
	t.Helper()
	pq, err := quantization.NewProductQuantizer(len(vectors[0]), 2, 4)
	require.NoError(t, err)
	require.NoError(t, pq.Train(context.Background(), vectors))
	return pq
}

func TestCodes(t *testing.T) {
	vectors := [][]float32{
		{0, 0, 0, 0}, {0.1, 0, 0, 0.1},
		{10, 10, 10, 10}, {10.1, 10, 10, 10.1},
		{-10, 5, -10, 5}, {-10, 5.1, -10, 5},
	}
	pq := trainedPQ(t, vectors)

	s, err := NewCodes(pq, distance.MetricL2, len(vectors))
	require.NoError(t, err)
	for i, v := range vectors {
		require.NoError(t, s.Put(Slot(i), v))
	}
	assert.Equal(t, 6, s.Len())
	assert.Equal(t, 4, s.Dim())

	code, err := s.Code(2)
	require.NoError(t, err)
	assert.Len(t, code, 2)

	qd, err := s.ForQuery([]float32{10, 10, 10, 10})
	require.NoError(t, err)
	assert.Less(t, qd.Distance(2), qd.Distance(0))
	assert.Less(t, qd.Distance(3), qd.Distance(4))

	approx, err := s.Get(0)
	require.NoError(t, err)
	assert.Len(t, approx, 4)

	d, err := s.Distance(0, 2)
	require.NoError(t, err)
	assert.Greater(t, d, float32(100))

	single, err := s.DistanceToQuery([]float32{10, 10, 10, 10}, 2)
	require.NoError(t, err)
	assert.Equal(t, qd.Distance(2), single)
}

func TestCodesUntrained(t *testing.T) {
	pq, err := quantization.NewProductQuantizer(4, 2, 4)
	require.NoError(t, err)
	_, err = NewCodes(pq, distance.MetricL2, 0)
	require.ErrorIs(t, err, quantization.ErrNotTrained)
}

func TestMappedCodes(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 1}, {5, 5}, {6, 6}}
	pq, err := quantization.NewProductQuantizer(2, 1, 2)
	require.NoError(t, err)
	require.NoError(t, pq.Train(context.Background(), vectors))

	mem, err := NewCodes(pq, distance.MetricL2, 0)
	require.NoError(t, err)
	view := make([]byte, 0, 16)
	for i, v := range vectors {
		require.NoError(t, mem.Put(Slot(i), v))
		c, err := mem.Code(Slot(i))
		require.NoError(t, err)
		view = append(view, c[0], 0xAA, 0xAA, 0xAA)
	}

	mapped, err := NewMappedCodes(pq, view, 4, 4, distance.MetricL2)
	require.NoError(t, err)
	for i := range vectors {
		a, _ := mem.Code(Slot(i))
		b, err := mapped.Code(Slot(i))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
	require.ErrorIs(t, mapped.Put(0, []float32{0, 0}), ErrReadOnly)
}

func TestCodesPutCode(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 1}, {5, 5}, {6, 6}}
	pq, err := quantization.NewProductQuantizer(2, 1, 2)
	require.NoError(t, err)
	require.NoError(t, pq.Train(context.Background(), vectors))

	s, err := NewCodes(pq, distance.MetricL2, 0)
	require.NoError(t, err)
	require.NoError(t, s.PutCode(2, []byte{1}))
	assert.Equal(t, 3, s.Len())

	c, err := s.Code(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, c)

	require.ErrorIs(t, s.PutCode(0, []byte{0, 0}), quantization.ErrInvalidCode)
}

func TestLoadFloatsKeepsValues(t *testing.T) {
	data := []float32{0.6, 0.8, 1, 0}
	s, err := LoadFloats(data, 2, distance.MetricCosine)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	v, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, v)

	require.NoError(t, s.Put(2, []float32{0, 2}))
	v, err = s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, v)

	_, err = LoadFloats([]float32{1, 2, 3}, 2, distance.MetricL2)
	var dm *DimensionMismatchError
	require.ErrorAs(t, err, &dm)
}
