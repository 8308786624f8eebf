// Package vecio reads and writes the binary vector files used by the
// command line tools.
//
// A .fbin file holds int32 n, int32 dim and n*dim float32 values. A ground
// truth file (.ibin, .gt) holds int32 n, int32 k, n*k uint32 ids and
// optionally n*k float32 distances. All values are little-endian.
package vecio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMalformed is returned for files whose header or size is inconsistent.
var ErrMalformed = errors.New("vecio: malformed file")

// maxElems bounds n*dim so a corrupt header cannot request absurd
// allocations.
const maxElems = 1 << 34

func readHeader(r io.Reader) (int, int, error) {
	var hdr [2]int32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}
	n, dim := int(hdr[0]), int(hdr[1])
	if n < 0 || dim <= 0 || int64(n)*int64(dim) > maxElems {
		return 0, 0, fmt.Errorf("%w: header (%d, %d)", ErrMalformed, n, dim)
	}
	return n, dim, nil
}

// ReadVectors reads a .fbin stream.
func ReadVectors(r io.Reader) ([][]float32, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	n, dim, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	flat := make([]float32, n*dim)
	if err := binary.Read(br, binary.LittleEndian, flat); err != nil {
		return nil, fmt.Errorf("%w: %d vectors of dimension %d: %w", ErrMalformed, n, dim, err)
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return out, nil
}

// WriteVectors writes vectors as a .fbin stream. All vectors must share one
// dimension.
func WriteVectors(w io.Writer, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no vectors", ErrMalformed)
	}
	dim := len(vectors[0])

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, [2]int32{int32(len(vectors)), int32(dim)}); err != nil {
		return err
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrMalformed, i, len(v), dim)
		}
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Truth is a ground truth table: K neighbor ids per query, nearest first.
type Truth struct {
	K   int
	IDs [][]uint32
	// Distances is nil when the file carries ids only.
	Distances [][]float32
}

// ReadTruth reads a ground truth stream.
func ReadTruth(r io.Reader) (*Truth, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	n, k, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	ids := make([]uint32, n*k)
	if err := binary.Read(br, binary.LittleEndian, ids); err != nil {
		return nil, fmt.Errorf("%w: ids: %w", ErrMalformed, err)
	}
	t := &Truth{K: k, IDs: make([][]uint32, n)}
	for i := range t.IDs {
		t.IDs[i] = ids[i*k : (i+1)*k : (i+1)*k]
	}

	dists := make([]float32, n*k)
	switch err := binary.Read(br, binary.LittleEndian, dists); {
	case errors.Is(err, io.EOF) && n*k > 0:
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("%w: distances: %w", ErrMalformed, err)
	}
	t.Distances = make([][]float32, n)
	for i := range t.Distances {
		t.Distances[i] = dists[i*k : (i+1)*k : (i+1)*k]
	}
	return t, nil
}

// WriteTruth writes t as a ground truth stream. Distances are written when
// present.
func WriteTruth(w io.Writer, t *Truth) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, [2]int32{int32(len(t.IDs)), int32(t.K)}); err != nil {
		return err
	}
	for i, row := range t.IDs {
		if len(row) != t.K {
			return fmt.Errorf("%w: row %d has %d ids, want %d", ErrMalformed, i, len(row), t.K)
		}
		if err := binary.Write(bw, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	for i, row := range t.Distances {
		if len(row) != t.K {
			return fmt.Errorf("%w: row %d has %d distances, want %d", ErrMalformed, i, len(row), t.K)
		}
		if err := binary.Write(bw, binary.LittleEndian, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadVectorsFile reads a .fbin file.
func ReadVectorsFile(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadVectors(f)
}

// ReadTruthFile reads a ground truth file.
func ReadTruthFile(path string) (*Truth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTruth(f)
}

// WriteVectorsFile writes vectors to a .fbin file.
func WriteVectorsFile(path string, vectors [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteVectors(f, vectors); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
