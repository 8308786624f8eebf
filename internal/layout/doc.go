// Package layout encodes and decodes the persisted index file.
//
// A file is a fixed 64-byte header, a record section, a list of tagged
// trailer sections and a 16-byte footer:
//
//	header   magic, version, flags, dim, count, R, metric, medoid,
//	         pq m/k, record size, universal label, header CRC
//	records  count fixed-size records {payload | degree | neighbors[R]}
//	trailer  [tag uint32][length uint64][payload] ...
//	footer   [trailer offset uint64][body CRC uint32][magic uint32]
//
// Uncompressed record sections start at offset 64 with a stride that is a
// multiple of four, so a memory-mapped file can be searched in place.
// Compressed sections store blocks of BlockRecords records, each prefixed by
// [uncompressed uint32][compressed uint32] where a zero compressed length
// marks a raw block.
//
// All integers are little-endian. The body CRC (CRC32-C) covers every byte
// between the header and the footer.
package layout
