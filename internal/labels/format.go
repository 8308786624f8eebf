package labels

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformed is returned for label files that cannot be parsed.
var ErrMalformed = errors.New("labels: malformed label file")

// ParseText reads one label set per line, labels separated by commas.
// Blank lines yield empty sets. The same format describes per-query filter
// lists.
func ParseText(r io.Reader) ([]Set, error) {
	var out []Set

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			out = append(out, nil)
			continue
		}

		fields := strings.Split(text, ",")
		ls := make([]Label, 0, len(fields))
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			v, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %q", ErrMalformed, line, f)
			}
			ls = append(ls, Label(v))
		}
		out = append(out, NewSet(ls...))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteText writes sets in the ParseText format.
func WriteText(w io.Writer, sets []Set) error {
	bw := bufio.NewWriter(w)
	for _, s := range sets {
		if _, err := bw.WriteString(s.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// maxSpmatRows bounds the row count accepted from a sparse matrix header.
const maxSpmatRows = 1 << 32

// ReadSpmat reads a CSR sparse matrix and returns, for every row, the column
// indices of its stored entries shifted by offset.
//
// Layout (little-endian): int64 rows, int64 cols, int64 nnz,
// int64 indptr[rows+1], int32 indices[nnz], float32 data[nnz].
func ReadSpmat(r io.Reader, offset Label) ([]Set, error) {
	br := bufio.NewReader(r)

	var hdr [3]int64
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformed, err)
	}
	rows, cols, nnz := hdr[0], hdr[1], hdr[2]
	if rows < 0 || cols < 0 || nnz < 0 || rows > maxSpmatRows || cols > int64(^uint32(0)) {
		return nil, fmt.Errorf("%w: header (%d, %d, %d)", ErrMalformed, rows, cols, nnz)
	}

	indptr := make([]int64, rows+1)
	if err := binary.Read(br, binary.LittleEndian, indptr); err != nil {
		return nil, fmt.Errorf("%w: indptr: %w", ErrMalformed, err)
	}
	if indptr[0] != 0 || indptr[rows] != nnz {
		return nil, fmt.Errorf("%w: indptr does not span %d entries", ErrMalformed, nnz)
	}

	indices := make([]int32, nnz)
	if err := binary.Read(br, binary.LittleEndian, indices); err != nil {
		return nil, fmt.Errorf("%w: indices: %w", ErrMalformed, err)
	}
	// The values are weights, unused for label membership, but must be present.
	if _, err := io.CopyN(io.Discard, br, nnz*4); err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrMalformed, err)
	}

	out := make([]Set, rows)
	for i := range rows {
		lo, hi := indptr[i], indptr[i+1]
		if lo > hi || hi > nnz {
			return nil, fmt.Errorf("%w: row %d spans [%d, %d)", ErrMalformed, i, lo, hi)
		}
		ls := make([]Label, 0, hi-lo)
		for _, c := range indices[lo:hi] {
			if c < 0 || int64(c) >= cols {
				return nil, fmt.Errorf("%w: row %d column %d out of range", ErrMalformed, i, c)
			}
			ls = append(ls, Label(c)+offset)
		}
		out[i] = NewSet(ls...)
	}
	return out, nil
}

// WriteSpmat writes sets as a CSR sparse matrix with unit weights, the
// inverse of ReadSpmat with the same offset.
func WriteSpmat(w io.Writer, sets []Set, cols int64, offset Label) error {
	var nnz int64
	for _, s := range sets {
		nnz += int64(len(s))
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, [3]int64{int64(len(sets)), cols, nnz}); err != nil {
		return err
	}

	var pos int64
	if err := binary.Write(bw, binary.LittleEndian, pos); err != nil {
		return err
	}
	for _, s := range sets {
		pos += int64(len(s))
		if err := binary.Write(bw, binary.LittleEndian, pos); err != nil {
			return err
		}
	}
	for _, s := range sets {
		for _, l := range s {
			if l < offset {
				return fmt.Errorf("labels: label %d below offset %d", l, offset)
			}
			if err := binary.Write(bw, binary.LittleEndian, int32(l-offset)); err != nil {
				return err
			}
		}
	}
	for range nnz {
		if err := binary.Write(bw, binary.LittleEndian, float32(1)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
