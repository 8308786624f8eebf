package vamana

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"github.com/hupe1980/vamana/blobstore"
	"github.com/hupe1980/vamana/distance"
	"github.com/hupe1980/vamana/internal/graph"
	"github.com/hupe1980/vamana/internal/ids"
	"github.com/hupe1980/vamana/internal/labels"
	"github.com/hupe1980/vamana/internal/layout"
	"github.com/hupe1980/vamana/internal/mmap"
	"github.com/hupe1980/vamana/internal/quantization"
	"github.com/hupe1980/vamana/internal/resource"
	"github.com/hupe1980/vamana/internal/searcher"
	"github.com/hupe1980/vamana/internal/vectorstore"
)

const (
	// CurrentBlob names the blob holding the name of the published snapshot.
	CurrentBlob = "CURRENT"

	snapshotPrefix = "snapshots/"
	snapshotSuffix = ".vmn"
)

// Save writes the index in the persisted layout. Writes are throttled by
// the resource controller's IO budget.
func (ix *Index) Save(ctx context.Context, w io.Writer) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	err := ix.save(ctx, w)
	ix.opts.logger.LogSave(ctx, "stream", ix.liveCount(), err)
	return err
}

func (ix *Index) save(ctx context.Context, w io.Writer) error {
	if err := ix.searchable(); err != nil {
		return err
	}
	f, err := ix.encode(ctx)
	if err != nil {
		return translateError(err)
	}
	return layout.Write(resource.NewRateLimitedWriter(ctx, w, ix.opts.resources), f)
}

// encode captures the index as a layout.File. Released slots are written
// with empty neighbor lists and a zero payload.
func (ix *Index) encode(ctx context.Context) (*layout.File, error) {
	n := ix.ids.Cap()
	h := layout.Header{
		Dim:       uint32(ix.dim),
		Count:     uint64(n),
		MaxDegree: uint32(ix.opts.maxDegree),
		Metric:    uint32(ix.opts.metric),
		Medoid:    ix.medoid,
	}
	if ix.codes != nil {
		pq := ix.codes.Quantizer()
		h.Flags |= layout.FlagPQ
		h.PQM = uint32(pq.M())
		h.PQK = uint32(pq.K())
	}
	if l, ok := ix.labels.Universal(); ok {
		h.Flags |= layout.FlagUniversal
		h.Universal = l
	}
	h.SetCompression(ix.opts.compression)

	payload := h.PayloadSize()
	stride := layout.RecordSize(payload, ix.opts.maxDegree)
	h.RecordSize = uint32(stride)

	f := &layout.File{
		Header:      h,
		Records:     make([]byte, n*stride),
		IDs:         ix.ids.Snapshot(),
		EntryPoints: ix.entryPoints,
	}
	if ix.codes != nil {
		f.Codebooks = ix.codes.Quantizer().Codebooks()
	}

	buf := make([]byte, payload)
	var nbrs []Slot
	for s := range n {
		if s%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		slot := Slot(s)
		clear(buf)
		nbrs = nbrs[:0]
		if ix.ids.Live(slot) {
			if err := ix.payload(buf, slot); err != nil {
				return nil, err
			}
			nbrs = append(nbrs, ix.graph.Neighbors(slot)...)
		}
		layout.PutRecord(f.Records[s*stride:(s+1)*stride], buf, nbrs, ix.opts.maxDegree)
	}

	if len(ix.labels.Distinct()) > 0 {
		f.Labels = make([][]uint32, n)
		for s := range n {
			f.Labels[s] = ix.labels.Labels(Slot(s))
		}
	}
	if ix.numDeleted > 0 {
		f.Tombstones = roaring.New()
		for d, ok := ix.deleted.NextSet(0); ok; d, ok = ix.deleted.NextSet(d + 1) {
			f.Tombstones.Add(uint32(d))
		}
	}
	return f, nil
}

// payload writes the record payload of a live slot: its PQ code when codes
// are kept, its vector otherwise.
func (ix *Index) payload(dst []byte, s Slot) error {
	if ix.codes != nil {
		code, err := ix.codes.Code(s)
		if err != nil {
			return err
		}
		copy(dst, code)
		return nil
	}
	v, err := ix.exact.Get(s)
	if err != nil {
		return err
	}
	layout.PutFloats(dst, v)
	return nil
}

// Load reads an index written by Save into memory. The result supports
// Insert, Delete and Consolidate. Structural options (dimension, metric, R,
// PQ shape, universal label, compression) come from the file; runtime
// options such as logging, threads and L come from opts.
func Load(ctx context.Context, r io.Reader, opts ...Option) (*Index, error) {
	o := applyOptions(opts)
	f, err := layout.Read(resource.NewRateLimitedReader(ctx, r, o.resources))
	if err == nil {
		var ix *Index
		ix, err = fromFile(f, o, false)
		if err == nil {
			o.logger.LogLoad(ctx, "stream", ix.liveCount(), nil)
			return ix, nil
		}
	}
	err = translateError(err)
	o.logger.LogLoad(ctx, "stream", 0, err)
	return nil, err
}

// fromFile assembles an index from a decoded file. With mapped set the
// vector and graph stores read the records in place.
func fromFile(f *layout.File, o options, mapped bool) (*Index, error) {
	h := f.Header
	dim := int(h.Dim)
	n := int(h.Count)
	if o.expectDim > 0 && o.expectDim != dim {
		return nil, &ErrDimensionMismatch{Expected: o.expectDim, Actual: dim}
	}

	o.metric = distance.Metric(h.Metric)
	o.maxDegree = int(h.MaxDegree)
	o.compression = h.Compression()
	o.pqChunks = int(h.PQM)
	if h.Has(layout.FlagPQ) {
		o.pqCentroids = int(h.PQK)
	}
	o.filtered = o.filtered || len(f.EntryPoints) > 0
	o.noUniversal = !h.Has(layout.FlagUniversal)
	o.universal = h.Universal
	if err := o.validate(dim); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndexFile, err)
	}

	alloc, err := ids.Restore(f.IDs, o.capacity)
	if err != nil {
		return nil, err
	}

	ix := &Index{
		dim:         dim,
		opts:        o,
		ids:         alloc,
		labels:      labels.NewStore(o.labelOptions()...),
		entryPoints: make(map[Label]Slot, len(f.EntryPoints)),
		deleted:     bitset.New(uint(n)),
		medoid:      h.Medoid,
		built:       true,
	}
	for l, s := range f.EntryPoints {
		if int(s) >= n {
			return nil, fmt.Errorf("%w: entry point %d out of range", ErrCorruptIndexFile, s)
		}
		ix.entryPoints[l] = s
	}
	for s, set := range f.Labels {
		if len(set) > 0 {
			ix.labels.Set(Slot(s), labels.NewSet(set...))
		}
	}
	if f.Tombstones != nil {
		it := f.Tombstones.Iterator()
		for it.HasNext() {
			s := it.Next()
			if !alloc.Live(s) {
				return nil, fmt.Errorf("%w: tombstone on free slot %d", ErrCorruptIndexFile, s)
			}
			ix.deleted.Set(uint(s))
			ix.numDeleted++
		}
	}

	var pq *quantization.ProductQuantizer
	if h.Has(layout.FlagPQ) {
		if pq, err = quantization.NewProductQuantizer(dim, int(h.PQM), int(h.PQK)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptIndexFile, err)
		}
		if err := pq.SetCodebooks(f.Codebooks, int(h.PQK)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptIndexFile, err)
		}
	}

	if mapped {
		err = ix.mapStores(f, pq)
	} else {
		err = ix.loadStores(f, pq)
	}
	if err != nil {
		return nil, err
	}

	ix.pool = searcher.NewPool(o.poolSize, n, o.searchListSize)
	return ix, nil
}

// mapStores serves vectors and neighbors straight from the record section.
func (ix *Index) mapStores(f *layout.File, pq *quantization.ProductQuantizer) error {
	h := f.Header
	n := int(h.Count)
	stride := int(h.RecordSize)
	payload := h.PayloadSize()
	metric := ix.opts.metric

	var err error
	if pq != nil {
		ix.codes, err = vectorstore.NewMappedCodes(pq, f.Records, stride, n, metric)
	} else {
		ix.exact, err = vectorstore.NewMappedFloats(layout.Float32View(f.Records), ix.dim, stride/4, n, metric)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptIndexFile, err)
	}

	g, err := graph.NewMapped(layout.Uint32View(f.Records), n, int(h.MaxDegree), stride/4, layout.DegreeOffset(payload)/4)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptIndexFile, err)
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptIndexFile, err)
	}
	ix.graph = g
	return nil
}

// loadStores copies vectors and neighbors into writable in-memory stores.
// The reservation is returned when it fails.
func (ix *Index) loadStores(f *layout.File, pq *quantization.ProductQuantizer) (err error) {
	h := f.Header
	n := int(h.Count)
	r := int(h.MaxDegree)
	payload := h.PayloadSize()

	need := graph.Bytes(n, r) + int64(n*payload)
	if err := ix.opts.resources.AcquireMemory(need); err != nil {
		return err
	}
	ix.reserved = need
	defer func() {
		if err != nil {
			ix.opts.resources.ReleaseMemory(need)
			ix.reserved = 0
		}
	}()

	mem, err := graph.NewMemory(n, r)
	if err != nil {
		return err
	}

	var data []float32
	if pq != nil {
		if ix.codes, err = vectorstore.NewCodes(pq, ix.opts.metric, n); err != nil {
			return err
		}
	} else {
		data = make([]float32, 0, n*ix.dim)
	}

	for s := range n {
		rec := f.Record(s)
		if pq != nil {
			if err := ix.codes.PutCode(Slot(s), rec[:payload]); err != nil {
				return err
			}
		} else {
			data = append(data, layout.RecordFloats(rec, ix.dim)...)
		}
		if err := mem.SetNeighbors(Slot(s), layout.RecordNeighbors(rec, payload)); err != nil {
			return fmt.Errorf("%w: slot %d: %w", ErrCorruptIndexFile, s, err)
		}
	}
	if pq == nil {
		if ix.exact, err = vectorstore.LoadFloats(data, ix.dim, ix.opts.metric); err != nil {
			return err
		}
	}

	ix.graph = mem
	ix.mem = mem
	return nil
}

// SaveFile writes the index to path atomically through a temporary file in
// the same directory.
func (ix *Index) SaveFile(ctx context.Context, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err := ix.Save(ctx, bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// OpenFile memory-maps an index file. Uncompressed files are searched in
// place and are read-only: Insert, Delete and Consolidate return
// ErrReadOnly. Compressed files are decoded into memory and stay writable.
// Close releases the mapping.
func OpenFile(ctx context.Context, path string, opts ...Option) (*Index, error) {
	o := applyOptions(opts)
	ix, err := openFile(path, o)
	err = translateError(err)
	count := 0
	if ix != nil {
		count = ix.liveCount()
	}
	o.logger.LogLoad(ctx, path, count, err)
	return ix, err
}

func openFile(path string, o options) (*Index, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.AccessRandom)

	f, err := layout.Parse(m.Bytes())
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	mapped := f.Header.Compression() == layout.CompressionNone
	ix, err := fromFile(f, o, mapped)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	if mapped {
		ix.mapping = m
	} else {
		_ = m.Close()
	}
	return ix, nil
}

// Publish uploads the index as a new immutable snapshot and then points
// CurrentBlob at it. It returns the snapshot name.
func (ix *Index) Publish(ctx context.Context, store blobstore.BlobStore) (string, error) {
	name := snapshotPrefix + uuid.NewString() + snapshotSuffix

	wb, err := store.Create(ctx, name)
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriterSize(wb, 1<<20)
	if err := ix.Save(ctx, bw); err != nil {
		_ = wb.Close()
		return "", err
	}
	if err := bw.Flush(); err != nil {
		_ = wb.Close()
		return "", err
	}
	if err := wb.Sync(); err != nil {
		_ = wb.Close()
		return "", err
	}
	if err := wb.Close(); err != nil {
		return "", err
	}

	if err := store.Put(ctx, CurrentBlob, []byte(name)); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	return name, nil
}

// OpenBlob loads the snapshot CurrentBlob points at.
func OpenBlob(ctx context.Context, store blobstore.BlobStore, opts ...Option) (*Index, error) {
	cur, err := readBlob(ctx, store, CurrentBlob)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", CurrentBlob, err)
	}
	name := strings.TrimSpace(string(cur))

	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return Load(ctx, rc, opts...)
}

func readBlob(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
