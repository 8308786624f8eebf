package layout

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// NoNeighbor pads unused neighbor entries.
const NoNeighbor uint32 = math.MaxUint32

// PutRecord encodes one record into dst, which must be RecordSize bytes.
func PutRecord(dst, payload []byte, neighbors []uint32, r int) {
	clear(dst)
	copy(dst, payload)
	off := DegreeOffset(len(payload))
	binary.LittleEndian.PutUint32(dst[off:], uint32(len(neighbors)))
	off += 4
	for i := range r {
		v := NoNeighbor
		if i < len(neighbors) {
			v = neighbors[i]
		}
		binary.LittleEndian.PutUint32(dst[off+4*i:], v)
	}
}

// PutFloats encodes v into dst as little-endian float32s.
func PutFloats(dst []byte, v []float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(f))
	}
}

// RecordNeighbors decodes the neighbor list of one record.
func RecordNeighbors(rec []byte, payload int) []uint32 {
	off := DegreeOffset(payload)
	deg := int(binary.LittleEndian.Uint32(rec[off:]))
	out := make([]uint32, deg)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(rec[off+4+4*i:])
	}
	return out
}

// RecordFloats decodes the vector payload of one record.
func RecordFloats(rec []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(rec[4*i:]))
	}
	return out
}

// Float32View reinterprets b as float32s without copying. b must be 4-byte
// aligned and the host little-endian.
func Float32View(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Uint32View reinterprets b as uint32s without copying. b must be 4-byte
// aligned and the host little-endian.
func Uint32View(b []byte) []uint32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// validateRecords checks every degree against R and every neighbor against
// the slot range.
func validateRecords(h *Header, records []byte) error {
	stride := int(h.RecordSize)
	off := DegreeOffset(h.PayloadSize())
	r := int(h.MaxDegree)
	n := int(h.Count)

	for s := range n {
		rec := records[s*stride : (s+1)*stride]
		deg := int(binary.LittleEndian.Uint32(rec[off:]))
		if deg > r {
			return fmt.Errorf("%w: slot %d degree %d exceeds %d", ErrCorrupt, s, deg, r)
		}
		for i := range deg {
			v := binary.LittleEndian.Uint32(rec[off+4+4*i:])
			if int(v) >= n || int(v) == s {
				return fmt.Errorf("%w: slot %d has invalid neighbor %d", ErrCorrupt, s, v)
			}
		}
	}
	return nil
}
