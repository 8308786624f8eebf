package vecio

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorsRoundTrip(t *testing.T) {
	vectors := [][]float32{{1, 2, 3}, {4, 5, 6}}

	var buf bytes.Buffer
	require.NoError(t, WriteVectors(&buf, vectors))
	assert.Equal(t, 8+6*4, buf.Len())
	assert.Equal(t, int32(2), int32(binary.LittleEndian.Uint32(buf.Bytes())))

	got, err := ReadVectors(&buf)
	require.NoError(t, err)
	assert.Equal(t, vectors, got)

	got[0] = append(got[0], 9)
	assert.Equal(t, []float32{4, 5, 6}, got[1])
}

func TestVectorsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.fbin")
	require.NoError(t, WriteVectorsFile(path, [][]float32{{0.5}}))

	got, err := ReadVectorsFile(path)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5}}, got)

	_, err = ReadVectorsFile(filepath.Join(t.TempDir(), "missing.fbin"))
	require.Error(t, err)
}

func TestVectorsMalformed(t *testing.T) {
	_, err := ReadVectors(bytes.NewReader([]byte{1, 0}))
	require.ErrorIs(t, err, ErrMalformed)

	var hdr bytes.Buffer
	require.NoError(t, binary.Write(&hdr, binary.LittleEndian, [2]int32{2, 0}))
	_, err = ReadVectors(&hdr)
	require.ErrorIs(t, err, ErrMalformed)

	var short bytes.Buffer
	require.NoError(t, binary.Write(&short, binary.LittleEndian, [2]int32{2, 2}))
	require.NoError(t, binary.Write(&short, binary.LittleEndian, []float32{1, 2, 3}))
	_, err = ReadVectors(&short)
	require.ErrorIs(t, err, ErrMalformed)

	require.ErrorIs(t, WriteVectors(&bytes.Buffer{}, nil), ErrMalformed)
	require.ErrorIs(t, WriteVectors(&bytes.Buffer{}, [][]float32{{1}, {1, 2}}), ErrMalformed)
}

func TestTruthRoundTrip(t *testing.T) {
	truth := &Truth{
		K:         2,
		IDs:       [][]uint32{{3, 1}, {0, 2}},
		Distances: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTruth(&buf, truth))
	got, err := ReadTruth(&buf)
	require.NoError(t, err)
	assert.Equal(t, truth, got)

	idsOnly := &Truth{K: 1, IDs: [][]uint32{{7}, {8}, {9}}}
	buf.Reset()
	require.NoError(t, WriteTruth(&buf, idsOnly))
	got, err = ReadTruth(&buf)
	require.NoError(t, err)
	assert.Equal(t, idsOnly.IDs, got.IDs)
	assert.Nil(t, got.Distances)
}

func TestTruthMalformed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, [2]int32{1, 2}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{1, 2}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, float32(1)))
	_, err := ReadTruth(&buf)
	require.ErrorIs(t, err, ErrMalformed)

	require.ErrorIs(t, WriteTruth(&bytes.Buffer{}, &Truth{K: 2, IDs: [][]uint32{{1}}}), ErrMalformed)
}
