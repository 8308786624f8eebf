package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/hupe1980/vamana/blobstore"
	miniostore "github.com/hupe1980/vamana/blobstore/minio"
	s3store "github.com/hupe1980/vamana/blobstore/s3"
)

// storeFlags select and tune the blob store of publish and pull.
type storeFlags struct {
	uri         string
	region      string
	commitTable string
	cacheBlocks int
	blockSize   int64
}

// openStore resolves a store URI:
//
//	file:///var/lib/vamana or a plain directory path
//	s3://bucket/prefix
//	minio://host:port/bucket/prefix (minio+http:// for plain HTTP)
//
// MinIO credentials come from MINIO_ACCESS_KEY and MINIO_SECRET_KEY. With a
// commit table, s3 stores commit CURRENT through DynamoDB.
func openStore(ctx context.Context, f storeFlags) (blobstore.BlobStore, error) {
	u, err := url.Parse(f.uri)
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", f.uri, err)
	}
	prefix := strings.Trim(u.Path, "/")

	var store blobstore.BlobStore
	switch u.Scheme {
	case "", "file":
		dir := u.Path
		if u.Scheme == "" {
			dir = f.uri
		}
		store = blobstore.NewLocalStore(dir)
	case "s3":
		var opts []s3store.Option
		if prefix != "" {
			opts = append(opts, s3store.WithPrefix(prefix))
		}
		if f.region != "" {
			opts = append(opts, s3store.WithRegion(f.region))
		}
		s, err := s3store.New(ctx, u.Host, opts...)
		if err != nil {
			return nil, err
		}
		store = s
		if f.commitTable != "" {
			var loadOpts []func(*awsconfig.LoadOptions) error
			if f.region != "" {
				loadOpts = append(loadOpts, awsconfig.WithRegion(f.region))
			}
			cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
			if err != nil {
				return nil, err
			}
			store = s3store.NewDDBCommitStore(s, dynamodb.NewFromConfig(cfg), f.commitTable, f.uri)
		}
	case "minio", "minio+http":
		bucket, rest, _ := strings.Cut(prefix, "/")
		if bucket == "" {
			return nil, fmt.Errorf("store %q: missing bucket", f.uri)
		}
		s, err := miniostore.Dial(u.Host, os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"),
			u.Scheme == "minio", bucket, rest)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("store %q: unsupported scheme %q", f.uri, u.Scheme)
	}

	if f.cacheBlocks > 0 {
		cs, err := blobstore.NewCachingStore(store, f.cacheBlocks, f.blockSize)
		if err != nil {
			return nil, err
		}
		return cs, nil
	}
	return store, nil
}
