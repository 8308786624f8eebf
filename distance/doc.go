// Package distance provides the vector distance functions used by the index.
//
// Dot products and norms are computed with vek32, which dispatches to
// AVX2 kernels on x86-64 and falls back to pure Go elsewhere.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (default)
//   - MetricInnerProduct: negative dot product, so smaller is nearer
//   - MetricCosine: 1 - dot product over unit-length vectors
//
// Every Func returned by Provider orders candidates ascending: a smaller
// value always means a nearer vector.
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricL2)
//	d := fn(a, b)
package distance
