// Package quantization implements product quantization (PQ) for compact
// vector storage and fast approximate distances.
//
// # Training
//
// The dimensions are split into M contiguous chunks. Each chunk gets its own
// codebook of up to 256 centers, learned with k-means over a sample of the
// input:
//
//	pq, _ := quantization.NewProductQuantizer(128, 16, 256)
//	_ = pq.Train(ctx, vectors)
//
// # Encoding
//
// A vector becomes M bytes, one center index per chunk:
//
//	code, _ := pq.Encode(v)     // 128 floats -> 16 bytes
//	approx, _ := pq.Decode(code)
//
// # Asymmetric Distance Computation
//
// A query stays in full precision. BuildDistanceTable computes, per chunk,
// the distance from the query chunk to every center; the distance to a code
// is then a sum of M table look-ups instead of a D-dimensional kernel:
//
//	dt, _ := pq.BuildDistanceTable(q, distance.MetricL2)
//	d := dt.Distance(code)
//
// Inner-product tables are filled with one BLAS Gemv per chunk.
package quantization
