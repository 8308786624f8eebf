// Package s3 stores index snapshots in Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/products/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	name, err := idx.Publish(ctx, store)
//	idx, err = vamana.OpenBlob(ctx, store)
//
// Snapshots are streamed as multipart uploads with CRC32C checksums and read
// back with ranged GETs. DDBCommitStore adds a DynamoDB table for the CURRENT
// pointer when several publishers share one prefix.
package s3
