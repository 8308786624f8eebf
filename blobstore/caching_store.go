package blobstore

import (
	"context"
	"errors"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the cache granularity used when none is given.
const DefaultBlockSize = 64 << 10

type blockKey struct {
	name  string
	block int64
}

// CachingStore puts an LRU block cache in front of another store. It suits
// remote stores where a search touches the same graph pages repeatedly.
type CachingStore struct {
	inner     BlobStore
	cache     *lru.Cache[blockKey, []byte]
	blockSize int64
}

// NewCachingStore caches up to maxBlocks blocks of blockSize bytes.
// blockSize defaults to DefaultBlockSize if <= 0.
func NewCachingStore(inner BlobStore, maxBlocks int, blockSize int64) (*CachingStore, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	c, err := lru.New[blockKey, []byte](maxBlocks)
	if err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, cache: c, blockSize: blockSize}, nil
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{inner: b, store: s, name: name}, nil
}

// Create passes through. Snapshots are immutable, so blocks of a blob being
// written are never cached before Close; stale blocks of an overwritten name
// are dropped.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.invalidate(name)
	return s.inner.Create(ctx, name)
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Len returns the number of cached blocks.
func (s *CachingStore) Len() int { return s.cache.Len() }

func (s *CachingStore) invalidate(name string) {
	for _, k := range s.cache.Keys() {
		if k.name == name {
			s.cache.Remove(k)
		}
	}
}

type cachingBlob struct {
	inner Blob
	store *CachingStore
	name  string
}

func (b *cachingBlob) Close() error { return b.inner.Close() }

func (b *cachingBlob) Size() int64 { return b.inner.Size() }

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.Size()
	if off < 0 || off >= size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), size)
	bs := b.store.blockSize
	first, last := off/bs, (end-1)/bs

	blocks, err := b.blocks(ctx, first, last)
	if err != nil {
		return 0, err
	}

	n := 0
	for i, data := range blocks {
		start := (first + int64(i)) * bs
		lo := max(off, start) - start
		hi := min(end, start+int64(len(data))) - start
		if hi <= lo {
			break
		}
		n += copy(p[n:], data[lo:hi])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// blocks returns blocks first..last, reading each contiguous run of misses
// from the inner blob with a single request.
func (b *cachingBlob) blocks(ctx context.Context, first, last int64) ([][]byte, error) {
	out := make([][]byte, last-first+1)

	type run struct{ start, count int64 }
	var misses []run
	for blk := first; blk <= last; blk++ {
		if data, ok := b.store.cache.Get(blockKey{b.name, blk}); ok {
			out[blk-first] = data
			continue
		}
		if n := len(misses); n > 0 && misses[n-1].start+misses[n-1].count == blk {
			misses[n-1].count++
		} else {
			misses = append(misses, run{blk, 1})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	bs := b.store.blockSize
	size := b.Size()
	for _, r := range misses {
		g.Go(func() error {
			start := r.start * bs
			buf := make([]byte, min(r.count*bs, size-start))
			n, err := b.inner.ReadAt(gctx, buf, start)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]
			for i := range r.count {
				lo := i * bs
				if lo >= int64(len(buf)) {
					break
				}
				// Clip so each block owns its capacity.
				blk := buf[lo:min(lo+bs, int64(len(buf))):min(lo+bs, int64(len(buf)))]
				b.store.cache.Add(blockKey{b.name, r.start + i}, blk)
				out[r.start+i-first] = blk
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *cachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	off, length = clampRange(b.Size(), off, length)
	return io.NopCloser(io.NewSectionReader(ctxReaderAt{ctx, b}, off, length)), nil
}

// ctxReaderAt adapts a Blob to io.ReaderAt for a fixed context.
type ctxReaderAt struct {
	ctx  context.Context
	blob Blob
}

func (r ctxReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return r.blob.ReadAt(r.ctx, p, off)
}
