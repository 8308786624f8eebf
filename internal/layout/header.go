package layout

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic identifies index files ("VMNA").
	Magic uint32 = 0x564D4E41

	// Version is the current format version.
	Version uint32 = 1

	// HeaderSize is the size of the file header in bytes.
	HeaderSize = 64

	// FooterSize is the size of the file footer in bytes.
	FooterSize = 16
)

// Header flags.
const (
	FlagPQ         uint32 = 1 << 0
	FlagLabels     uint32 = 1 << 1
	FlagUniversal  uint32 = 1 << 2
	FlagTombstones uint32 = 1 << 3

	compressionShift = 8
	compressionMask  = 0xFF << compressionShift
)

// Header describes the shape of an index file.
type Header struct {
	Flags      uint32
	Dim        uint32
	Count      uint64
	MaxDegree  uint32
	Metric     uint32
	Medoid     uint32
	PQM        uint32
	PQK        uint32
	RecordSize uint32
	Universal  uint32
}

// Compression returns the record-section compression stored in the flags.
func (h *Header) Compression() Compression {
	return Compression((h.Flags & compressionMask) >> compressionShift)
}

// SetCompression stores c in the flags.
func (h *Header) SetCompression(c Compression) {
	h.Flags = h.Flags&^compressionMask | uint32(c)<<compressionShift
}

// Has reports whether every bit of flag is set.
func (h *Header) Has(flag uint32) bool { return h.Flags&flag == flag }

// PayloadSize returns the bytes of vector or code data per record.
func (h *Header) PayloadSize() int {
	if h.Has(FlagPQ) {
		return int(h.PQM)
	}
	return int(h.Dim) * 4
}

// MarshalBinary encodes the header including its checksum.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], Magic)
	le.PutUint32(buf[4:], Version)
	le.PutUint32(buf[8:], h.Flags)
	le.PutUint32(buf[12:], h.Dim)
	le.PutUint64(buf[16:], h.Count)
	le.PutUint32(buf[24:], h.MaxDegree)
	le.PutUint32(buf[28:], h.Metric)
	le.PutUint32(buf[32:], h.Medoid)
	le.PutUint32(buf[36:], h.PQM)
	le.PutUint32(buf[40:], h.PQK)
	le.PutUint32(buf[44:], h.RecordSize)
	le.PutUint32(buf[48:], h.Universal)
	le.PutUint32(buf[60:], checksum(buf[:60]))
	return buf, nil
}

// UnmarshalBinary decodes and validates a header.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: short header", ErrCorrupt)
	}
	le := binary.LittleEndian
	if m := le.Uint32(buf[0:]); m != Magic {
		return fmt.Errorf("%w: invalid magic number 0x%08X", ErrCorrupt, m)
	}
	if v := le.Uint32(buf[4:]); v != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	if got, want := le.Uint32(buf[60:]), checksum(buf[:60]); got != want {
		return fmt.Errorf("%w: header checksum mismatch 0x%08X (expected 0x%08X)", ErrCorrupt, got, want)
	}

	*h = Header{
		Flags:      le.Uint32(buf[8:]),
		Dim:        le.Uint32(buf[12:]),
		Count:      le.Uint64(buf[16:]),
		MaxDegree:  le.Uint32(buf[24:]),
		Metric:     le.Uint32(buf[28:]),
		Medoid:     le.Uint32(buf[32:]),
		PQM:        le.Uint32(buf[36:]),
		PQK:        le.Uint32(buf[40:]),
		RecordSize: le.Uint32(buf[44:]),
		Universal:  le.Uint32(buf[48:]),
	}
	return h.validate()
}

func (h *Header) validate() error {
	switch {
	case h.Dim == 0:
		return fmt.Errorf("%w: zero dimension", ErrCorrupt)
	case h.MaxDegree == 0:
		return fmt.Errorf("%w: zero max degree", ErrCorrupt)
	case h.Count > uint64(^uint32(0)):
		return fmt.Errorf("%w: vector count %d exceeds slot range", ErrCorrupt, h.Count)
	case h.Count > 0 && uint64(h.Medoid) >= h.Count:
		return fmt.Errorf("%w: medoid %d out of range", ErrCorrupt, h.Medoid)
	case h.Has(FlagPQ) && (h.PQM == 0 || h.PQM > h.Dim || h.PQK == 0 || h.PQK > 256):
		return fmt.Errorf("%w: invalid pq shape m=%d k=%d", ErrCorrupt, h.PQM, h.PQK)
	case h.Compression() > CompressionZSTD:
		return fmt.Errorf("%w: unknown compression %d", ErrCorrupt, h.Compression())
	}
	if want := RecordSize(h.PayloadSize(), int(h.MaxDegree)); int(h.RecordSize) != want {
		return fmt.Errorf("%w: record size %d, expected %d", ErrCorrupt, h.RecordSize, want)
	}
	return nil
}

// RecordSize returns the stride of a record holding payload bytes of vector
// or code data and R neighbors. The payload is padded to four bytes.
func RecordSize(payload, r int) int {
	return align4(payload) + 4 + 4*r
}

// DegreeOffset returns the byte offset of the degree word within a record.
func DegreeOffset(payload int) int {
	return align4(payload)
}

func align4(n int) int { return (n + 3) &^ 3 }
