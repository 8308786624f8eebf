// Package vamana implements a filtered Vamana (DiskANN) approximate nearest
// neighbor index for fixed-dimensional float32 vectors.
//
// # Quick Start
//
//	idx, _ := vamana.New(128, vamana.WithMaxDegree(64), vamana.WithSearchListSize(100))
//	for i, v := range vectors {
//	    _ = idx.Add(uint64(i), v)
//	}
//	_ = idx.Build(ctx)
//	res, _ := idx.Search(ctx, query, 10)
//
// # Filters
//
// Vectors carry small integer labels. With WithFiltered(true) the graph is
// built so that every label's subgraph stays navigable, and searches can be
// restricted to one label or to any of several:
//
//	idx, _ := vamana.New(128, vamana.WithFiltered(true))
//	_ = idx.Add(1, v, 3, 7)
//	_ = idx.Build(ctx)
//	res, _ := idx.Search(ctx, q, 10, vamana.WithLabels(3, 9))
//
// The universal label (0 by default) matches every filter.
//
// # Compression
//
// WithPQ(m) stores m-byte product quantization codes next to the vectors.
// Searches walk the graph on codes and re-rank the final candidates on full
// vectors.
//
// # Persistence
//
// Save and Load stream the index; SaveFile and OpenFile work with files,
// and OpenFile searches uncompressed files in place through a read-only
// memory mapping. Publish and OpenBlob store immutable snapshots in a
// blobstore.BlobStore (local disk, S3, MinIO) behind a CURRENT pointer.
//
// # Updates
//
// Insert connects a vector into a built index. Delete hides a vector from
// results; Consolidate repairs the graph around deleted vectors and
// releases their slots.
package vamana
