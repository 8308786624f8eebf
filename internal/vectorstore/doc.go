// Package vectorstore holds slot vectors and evaluates distances over them.
//
// Two representations implement Store:
//
//   - Floats: full-precision float32 vectors, exact distances.
//   - Codes: product-quantized codes, approximate distances via per-query
//     look-up tables.
//
// Either can own its memory (built in process) or wrap a read-only view of a
// memory-mapped index file, in which case slot records are addressed with
// the file's record stride and nothing is copied. The index engine depends
// only on Store, so in-memory and mapped indexes run the same search code.
//
// Cosine vectors are normalized once on Put and queries are normalized in
// ForQuery, so cosine distance reduces to 1 - dot.
package vectorstore
