package layout

import (
	"bytes"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile(t *testing.T, n int, c Compression) *File {
	t.Helper()
	const dim, r = 3, 2

	h := Header{
		Dim:        dim,
		Count:      uint64(n),
		MaxDegree:  r,
		Metric:     0,
		Medoid:     1,
		RecordSize: uint32(RecordSize(dim*4, r)),
	}
	h.SetCompression(c)

	f := &File{
		Header:      h,
		Records:     make([]byte, n*int(h.RecordSize)),
		IDs:         make([]uint64, n),
		Labels:      make([][]uint32, n),
		EntryPoints: map[uint32]uint32{7: 0, 3: uint32(n - 1)},
		Tombstones:  roaring.BitmapOf(1),
	}
	payload := make([]byte, dim*4)
	for s := range n {
		PutFloats(payload, []float32{float32(s), float32(s % 7), 1})
		PutRecord(f.Record(s), payload, []uint32{uint32((s + 1) % n), uint32((s + 2) % n)}, r)
		f.IDs[s] = uint64(1000 + s)
		if s%2 == 0 {
			f.Labels[s] = []uint32{3, 7}
		}
	}
	return f
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			f := sampleFile(t, 2500, c)

			var buf bytes.Buffer
			require.NoError(t, Write(&buf, f))

			got, err := Parse(buf.Bytes())
			require.NoError(t, err)

			assert.Equal(t, c, got.Header.Compression())
			assert.True(t, got.Header.Has(FlagLabels|FlagTombstones))
			assert.Equal(t, f.Records, got.Records)
			assert.Equal(t, f.IDs, got.IDs)
			assert.Equal(t, f.Labels, got.Labels)
			assert.Equal(t, f.EntryPoints, got.EntryPoints)
			assert.True(t, f.Tombstones.Equals(got.Tombstones))

			assert.Equal(t, []uint32{6, 7}, RecordNeighbors(got.Record(5), 12))
			assert.Equal(t, []float32{5, 5, 1}, RecordFloats(got.Record(5), 3))

			var again bytes.Buffer
			require.NoError(t, Write(&again, got))
			assert.Equal(t, buf.Bytes(), again.Bytes())
		})
	}
}

func TestCompressedIsSmaller(t *testing.T) {
	f := sampleFile(t, 4096, CompressionZSTD)
	var packed bytes.Buffer
	require.NoError(t, Write(&packed, f))

	f.Header.SetCompression(CompressionNone)
	var raw bytes.Buffer
	require.NoError(t, Write(&raw, f))

	assert.Less(t, packed.Len(), raw.Len())
}

func TestPQCodebooks(t *testing.T) {
	const dim, m, k, r = 5, 2, 2, 1
	h := Header{
		Flags:      FlagPQ,
		Dim:        dim,
		Count:      2,
		MaxDegree:  r,
		PQM:        m,
		PQK:        k,
		RecordSize: uint32(RecordSize(m, r)),
	}
	f := &File{
		Header:    h,
		Records:   make([]byte, 2*int(h.RecordSize)),
		IDs:       []uint64{1, 2},
		Codebooks: [][]float32{{1, 2, 3, 4}, {1, 2, 3, 4, 5, 6}},
	}
	PutRecord(f.Record(0), []byte{0, 1}, []uint32{1}, r)
	PutRecord(f.Record(1), []byte{1, 0}, []uint32{0}, r)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))
	got, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f.Codebooks, got.Codebooks)
	assert.Equal(t, 12, int(got.Header.RecordSize), "payload pads to four bytes")
	assert.Equal(t, []byte{1, 0}, got.Record(1)[:2])
}

func TestCorruption(t *testing.T) {
	f := sampleFile(t, 10, CompressionNone)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))
	good := buf.Bytes()

	mutate := func(fn func(b []byte)) []byte {
		b := bytes.Clone(good)
		fn(b)
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"short", good[:20]},
		{"magic", mutate(func(b []byte) { b[0] ^= 0xFF })},
		{"header crc", mutate(func(b []byte) { b[12]++ })},
		{"body crc", mutate(func(b []byte) { b[HeaderSize+1] ^= 0x01 })},
		{"footer", mutate(func(b []byte) { b[len(b)-1] ^= 0xFF })},
		{"truncated", good[:len(good)-5]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestInvalidNeighborRejected(t *testing.T) {
	f := sampleFile(t, 4, CompressionNone)
	PutRecord(f.Record(2), make([]byte, 12), []uint32{2}, 2)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, f))
	_, err := Parse(buf.Bytes())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestViews(t *testing.T) {
	b := make([]byte, 8)
	PutFloats(b, []float32{1.5, -2})
	assert.Equal(t, []float32{1.5, -2}, Float32View(b))
	assert.Len(t, Uint32View(b), 2)
	assert.Nil(t, Float32View(nil))

	c, err := ParseCompression("lz4")
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, c)
	_, err = ParseCompression("gzip")
	require.Error(t, err)
}
