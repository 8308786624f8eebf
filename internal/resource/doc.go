// Package resource implements the resource controller that bounds what an
// index may consume.
//
//   - Memory: graph and vector arenas are reserved before they are
//     allocated (non-blocking, fail-fast)
//   - Background work: builds and consolidations take a worker slot
//   - IO: streaming an index to or from blob storage is rate limited
//
// # Memory Management
//
// AcquireMemory returns ErrMemoryLimitExceeded immediately when the limit
// would be exceeded:
//
//	rc := resource.NewController(resource.DefaultConfig(50)) // half of RAM
//
//	if err := rc.AcquireMemory(graphBytes); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(graphBytes)
//
// # IO Rate Limiting
//
//	w := resource.NewRateLimitedWriter(ctx, blobWriter, rc)
//	r := resource.NewRateLimitedReader(ctx, blobReader, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
