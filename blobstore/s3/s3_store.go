package s3

import (
	"bytes"
	"context"
	"errors"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/vamana/blobstore"
)

// ErrConflict is returned by PutIfAbsent when the object already exists.
var ErrConflict = errors.New("s3: object already exists")

// Store implements blobstore.BlobStore on an S3 bucket.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	upload   UploadConfig
	uploader *manager.Uploader
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	prefix  string
	region  string
	upload  UploadConfig
	loadOpt []func(*config.LoadOptions) error
}

// WithPrefix places every blob under prefix, e.g. "indexes/products/".
func WithPrefix(prefix string) Option {
	return func(c *storeConfig) { c.prefix = prefix }
}

// WithRegion overrides the region of the default AWS configuration.
func WithRegion(region string) Option {
	return func(c *storeConfig) { c.region = region }
}

// WithUploadConfig overrides DefaultUploadConfig.
func WithUploadConfig(u UploadConfig) Option {
	return func(c *storeConfig) { c.upload = u }
}

// New loads the default AWS configuration and returns a Store for bucket.
func New(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	c := storeConfig{upload: DefaultUploadConfig()}
	for _, o := range opts {
		o(&c)
	}
	if c.region != "" {
		c.loadOpt = append(c.loadOpt, config.WithRegion(c.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, c.loadOpt...)
	if err != nil {
		return nil, err
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, c.prefix, WithUploadConfig(c.upload)), nil
}

// NewStore wraps an existing client. Only WithUploadConfig is honored.
func NewStore(client Client, bucket, prefix string, opts ...Option) *Store {
	c := storeConfig{upload: DefaultUploadConfig()}
	for _, o := range opts {
		o(&c)
	}
	return &Store{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		upload:   c.upload,
		uploader: newUploader(client, c.upload),
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return openBlob(ctx, s.client, s.bucket, s.key(name))
}

// Create streams a multipart upload. The upload is bound to ctx.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newWritableBlob(ctx, s.uploader, s.bucket, s.key(name), s.upload.EnableChecksum), nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return putObject(ctx, s.client, s.bucket, s.key(name), data, s.upload.EnableChecksum)
}

// PutIfAbsent writes data only if name does not exist yet, using a
// conditional write. It returns ErrConflict otherwise.
func (s *Store) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "PreconditionFailed", "ConditionalRequestConflict":
				return ErrConflict
			}
		}
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	return err
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.key(prefix)
	// path.Join drops a trailing slash that is part of the prefix.
	if len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		full += "/"
	}
	return listObjects(ctx, s.client, s.bucket, full, s.prefix)
}
