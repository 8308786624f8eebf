// Package testutil generates vectors and labels for tests and benchmarks and
// computes exact ground truth.
//
//	rng := testutil.NewRNG(42)
//	data := rng.ClusteredVectors(10_000, 64, 32, 0.1)
//	truth := testutil.ExactTopK(data, q, 10, distance.MetricL2, nil)
//	recall := testutil.Recall(truth, ids)
package testutil
