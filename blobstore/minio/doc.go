// Package minio stores index snapshots on MinIO or another S3-compatible
// server (Ceph, Garage, SeaweedFS) through the MinIO client.
//
//	store, err := minio.Dial("localhost:9000", "minioadmin", "minioadmin", false, "indexes", "products/")
//	name, err := idx.Publish(ctx, store)
package minio
