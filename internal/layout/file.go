package layout

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrCorrupt is returned for files that fail header or layout validation.
var ErrCorrupt = errors.New("layout: corrupt index file")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(b []byte) uint32 { return crc32.Checksum(b, crc32cTable) }

// Trailer section tags.
const (
	tagCodebooks   uint32 = 1
	tagIDs         uint32 = 2
	tagLabels      uint32 = 3
	tagEntryPoints uint32 = 4
	tagTombstones  uint32 = 5
)

// File is the decoded content of an index file.
type File struct {
	Header Header

	// Records holds Count records of Header.RecordSize bytes. After Parse of
	// an uncompressed file it aliases the input.
	Records []byte

	// Codebooks holds one flat table per PQ chunk (FlagPQ).
	Codebooks [][]float32

	// IDs maps every slot to its external id.
	IDs []uint64

	// Labels holds the label list of every slot (FlagLabels).
	Labels [][]uint32

	// EntryPoints maps labels to their search start slot.
	EntryPoints map[uint32]uint32

	// Tombstones marks deleted slots (FlagTombstones).
	Tombstones *roaring.Bitmap
}

// Record returns the encoded record of slot s.
func (f *File) Record(s int) []byte {
	stride := int(f.Header.RecordSize)
	return f.Records[s*stride : (s+1)*stride]
}

// Write encodes f to w. Header.Flags for labels and tombstones are derived
// from the content.
func Write(w io.Writer, f *File) error {
	h := f.Header
	if len(f.Records) != int(h.Count)*int(h.RecordSize) {
		return fmt.Errorf("layout: %d record bytes for %d records of %d", len(f.Records), h.Count, h.RecordSize)
	}
	if len(f.IDs) != int(h.Count) {
		return fmt.Errorf("layout: %d ids for %d records", len(f.IDs), h.Count)
	}
	h.Flags &^= FlagLabels | FlagTombstones
	if f.Labels != nil {
		h.Flags |= FlagLabels
	}
	if f.Tombstones != nil && !f.Tombstones.IsEmpty() {
		h.Flags |= FlagTombstones
	}

	hdr, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	crc := crc32.New(crc32cTable)
	bw := &bodyWriter{w: io.MultiWriter(w, crc), h: crc}

	if err := writeRecords(bw, &h, f.Records); err != nil {
		return err
	}
	trailerOffset := uint64(HeaderSize) + uint64(bw.n)

	if h.Has(FlagPQ) {
		bw.section(tagCodebooks, encodeCodebooks(f.Codebooks))
	}
	bw.section(tagIDs, encodeIDs(f.IDs))
	if h.Has(FlagLabels) {
		if len(f.Labels) != int(h.Count) {
			return fmt.Errorf("layout: %d label lists for %d records", len(f.Labels), h.Count)
		}
		bw.section(tagLabels, encodeLabels(f.Labels))
	}
	if len(f.EntryPoints) > 0 {
		bw.section(tagEntryPoints, encodeEntryPoints(f.EntryPoints))
	}
	if h.Has(FlagTombstones) {
		b, err := f.Tombstones.ToBytes()
		if err != nil {
			return err
		}
		bw.section(tagTombstones, b)
	}
	if bw.err != nil {
		return bw.err
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(footer[0:], trailerOffset)
	binary.LittleEndian.PutUint32(footer[8:], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[12:], Magic)
	_, err = w.Write(footer)
	return err
}

func writeRecords(bw *bodyWriter, h *Header, records []byte) error {
	c := h.Compression()
	if c == CompressionNone {
		bw.write(records)
		return bw.err
	}
	block := BlockRecords * int(h.RecordSize)
	for off := 0; off < len(records); off += block {
		framed, err := compressBlock(records[off:min(off+block, len(records))], c)
		if err != nil {
			return err
		}
		bw.write(framed)
	}
	return bw.err
}

// Read decodes a complete index file from r.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates an index file held in memory. For
// uncompressed files the returned records alias data.
func Parse(data []byte) (*File, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file of %d bytes", ErrCorrupt, len(data))
	}

	f := &File{}
	if err := f.Header.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	h := &f.Header

	footer := data[len(data)-FooterSize:]
	if binary.LittleEndian.Uint32(footer[12:]) != Magic {
		return nil, fmt.Errorf("%w: invalid footer", ErrCorrupt)
	}
	body := data[HeaderSize : len(data)-FooterSize]
	if got, want := checksum(body), binary.LittleEndian.Uint32(footer[8:]); got != want {
		return nil, fmt.Errorf("%w: body checksum mismatch 0x%08X (expected 0x%08X)", ErrCorrupt, got, want)
	}
	trailerOffset := binary.LittleEndian.Uint64(footer[0:])
	if trailerOffset < HeaderSize || trailerOffset > uint64(len(data)-FooterSize) {
		return nil, fmt.Errorf("%w: trailer offset %d out of range", ErrCorrupt, trailerOffset)
	}

	section := data[HeaderSize:trailerOffset]
	size := int(h.Count) * int(h.RecordSize)
	if h.Compression() == CompressionNone {
		if len(section) != size {
			return nil, fmt.Errorf("%w: record section holds %d bytes, expected %d", ErrCorrupt, len(section), size)
		}
		f.Records = section
	} else {
		f.Records = make([]byte, size)
		if err := decompressBlocks(f.Records, section, h.Compression()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	if err := validateRecords(h, f.Records); err != nil {
		return nil, err
	}

	if err := f.parseTrailer(data[trailerOffset : len(data)-FooterSize]); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) parseTrailer(b []byte) error {
	h := &f.Header
	for len(b) > 0 {
		if len(b) < 12 {
			return fmt.Errorf("%w: truncated trailer", ErrCorrupt)
		}
		tag := binary.LittleEndian.Uint32(b[0:])
		n := binary.LittleEndian.Uint64(b[4:])
		if n > uint64(len(b)-12) {
			return fmt.Errorf("%w: trailer section %d overruns file", ErrCorrupt, tag)
		}
		payload := b[12 : 12+n]
		b = b[12+n:]

		var err error
		switch tag {
		case tagCodebooks:
			f.Codebooks, err = decodeCodebooks(payload, h)
		case tagIDs:
			f.IDs, err = decodeIDs(payload, int(h.Count))
		case tagLabels:
			f.Labels, err = decodeLabels(payload, int(h.Count))
		case tagEntryPoints:
			f.EntryPoints, err = decodeEntryPoints(payload, h.Count)
		case tagTombstones:
			f.Tombstones = roaring.New()
			err = f.Tombstones.UnmarshalBinary(payload)
		default:
			// Unknown sections are skipped.
		}
		if err != nil {
			return fmt.Errorf("%w: section %d: %w", ErrCorrupt, tag, err)
		}
	}

	switch {
	case f.IDs == nil:
		return fmt.Errorf("%w: missing id section", ErrCorrupt)
	case h.Has(FlagPQ) && f.Codebooks == nil:
		return fmt.Errorf("%w: missing codebook section", ErrCorrupt)
	case h.Has(FlagLabels) && f.Labels == nil:
		return fmt.Errorf("%w: missing label section", ErrCorrupt)
	case h.Has(FlagTombstones) && f.Tombstones == nil:
		return fmt.Errorf("%w: missing tombstone section", ErrCorrupt)
	}
	return nil
}

type bodyWriter struct {
	w   io.Writer
	h   hash.Hash32
	n   int64
	err error
}

func (bw *bodyWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	n, err := bw.w.Write(p)
	bw.n += int64(n)
	bw.err = err
}

func (bw *bodyWriter) section(tag uint32, payload []byte) {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:], tag)
	binary.LittleEndian.PutUint64(hdr[4:], uint64(len(payload)))
	bw.write(hdr[:])
	bw.write(payload)
}

func encodeCodebooks(cbs [][]float32) []byte {
	var buf bytes.Buffer
	var tmp [4]byte
	for _, cb := range cbs {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(cb)))
		buf.Write(tmp[:])
		for _, v := range cb {
			binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
			buf.Write(tmp[:])
		}
	}
	return buf.Bytes()
}

func decodeCodebooks(b []byte, h *Header) ([][]float32, error) {
	m, k, dim := int(h.PQM), int(h.PQK), int(h.Dim)
	out := make([][]float32, m)
	for j := range m {
		sub := dim / m
		if j == m-1 {
			sub = dim - (m-1)*(dim/m)
		}
		if len(b) < 4 {
			return nil, errors.New("truncated codebook")
		}
		n := int(binary.LittleEndian.Uint32(b))
		b = b[4:]
		if n != k*sub || len(b) < 4*n {
			return nil, fmt.Errorf("codebook %d holds %d values, expected %d", j, n, k*sub)
		}
		cb := make([]float32, n)
		for i := range cb {
			cb[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		out[j] = cb
		b = b[4*n:]
	}
	if len(b) != 0 {
		return nil, errors.New("trailing codebook bytes")
	}
	return out, nil
}

func encodeIDs(ids []uint64) []byte {
	out := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(out[8*i:], id)
	}
	return out
}

func decodeIDs(b []byte, n int) ([]uint64, error) {
	if len(b) != 8*n {
		return nil, fmt.Errorf("%d id bytes for %d records", len(b), n)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[8*i:])
	}
	return out, nil
}

func encodeLabels(sets [][]uint32) []byte {
	var buf bytes.Buffer
	var tmp [4]byte
	for _, s := range sets {
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(s)))
		buf.Write(tmp[:])
		for _, l := range s {
			binary.LittleEndian.PutUint32(tmp[:], l)
			buf.Write(tmp[:])
		}
	}
	return buf.Bytes()
}

func decodeLabels(b []byte, n int) ([][]uint32, error) {
	out := make([][]uint32, n)
	for i := range out {
		if len(b) < 4 {
			return nil, errors.New("truncated label list")
		}
		c := int(binary.LittleEndian.Uint32(b))
		b = b[4:]
		if len(b) < 4*c {
			return nil, errors.New("truncated label list")
		}
		if c > 0 {
			ls := make([]uint32, c)
			for j := range ls {
				ls[j] = binary.LittleEndian.Uint32(b[4*j:])
			}
			out[i] = ls
		}
		b = b[4*c:]
	}
	if len(b) != 0 {
		return nil, errors.New("trailing label bytes")
	}
	return out, nil
}

func encodeEntryPoints(eps map[uint32]uint32) []byte {
	keys := make([]uint32, 0, len(eps))
	for l := range eps {
		keys = append(keys, l)
	}
	slices.Sort(keys)

	out := make([]byte, 4+8*len(keys))
	binary.LittleEndian.PutUint32(out, uint32(len(keys)))
	for i, l := range keys {
		binary.LittleEndian.PutUint32(out[4+8*i:], l)
		binary.LittleEndian.PutUint32(out[8+8*i:], eps[l])
	}
	return out
}

func decodeEntryPoints(b []byte, count uint64) (map[uint32]uint32, error) {
	if len(b) < 4 {
		return nil, errors.New("truncated entry points")
	}
	n := int(binary.LittleEndian.Uint32(b))
	if len(b) != 4+8*n {
		return nil, fmt.Errorf("%d entry point bytes for %d entries", len(b), n)
	}
	out := make(map[uint32]uint32, n)
	for i := range n {
		l := binary.LittleEndian.Uint32(b[4+8*i:])
		s := binary.LittleEndian.Uint32(b[8+8*i:])
		if uint64(s) >= count {
			return nil, fmt.Errorf("entry point %d of label %d out of range", s, l)
		}
		out[l] = s
	}
	return out, nil
}
