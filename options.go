package vamana

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/hupe1980/vamana/distance"
	"github.com/hupe1980/vamana/internal/labels"
	"github.com/hupe1980/vamana/internal/layout"
	"github.com/hupe1980/vamana/internal/resource"
)

// Defaults applied by New and Load.
const (
	DefaultMaxDegree      = 64
	DefaultSearchListSize = 100
	DefaultAlpha          = 1.2
	DefaultPQCentroids    = 256
	DefaultSeed           = 42

	// DefaultUniversalLabel matches every filter unless WithUniversalLabel
	// or WithoutUniversalLabel says otherwise.
	DefaultUniversalLabel = labels.DefaultUniversal

	// medoidSampleSize bounds the sample the medoid and the per-label entry
	// points are chosen from.
	medoidSampleSize = 1000
)

type options struct {
	maxDegree      int
	searchListSize int
	alpha          float32
	filtered       bool
	threads        int
	metric         distance.Metric
	pqChunks       int
	pqCentroids    int
	pqSampleSize   int
	seed           uint64
	universal      labels.Label
	noUniversal    bool
	capacity       int
	poolSize       int
	compression    layout.Compression
	expectDim      int

	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
}

// Option configures an Index.
type Option func(*options)

// WithMaxDegree sets R, the maximum out-degree of every node.
func WithMaxDegree(r int) Option {
	return func(o *options) {
		o.maxDegree = r
	}
}

// WithSearchListSize sets L, the default search list size used both for
// construction and for queries that do not override it with WithL.
func WithSearchListSize(l int) Option {
	return func(o *options) {
		o.searchListSize = l
	}
}

// WithAlpha sets the pruning slack of the second construction pass.
// Values above 1 keep longer edges and make the graph easier to navigate.
func WithAlpha(alpha float32) Option {
	return func(o *options) {
		o.alpha = alpha
	}
}

// WithFiltered enables label-aware construction: every slot is connected
// through one filtered search per label it carries, and per-label entry
// points are selected.
func WithFiltered(enabled bool) Option {
	return func(o *options) {
		o.filtered = enabled
	}
}

// WithThreads bounds the worker pool used by Build, Consolidate and
// SearchBatch.
func WithThreads(n int) Option {
	return func(o *options) {
		o.threads = n
	}
}

// WithMetric selects the distance metric.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithPQ enables product quantization with m chunks. Searches traverse the
// graph on compressed codes and re-rank the final candidates on full
// vectors when those are available.
//
// Example:
//
//	idx, _ := vamana.New(128, vamana.WithPQ(16))
func WithPQ(m int) Option {
	return func(o *options) {
		o.pqChunks = m
	}
}

// WithPQCentroids sets the codebook size per chunk (at most 256).
func WithPQCentroids(k int) Option {
	return func(o *options) {
		o.pqCentroids = k
	}
}

// WithPQTrainSampleSize bounds the number of vectors codebooks are trained on.
func WithPQTrainSampleSize(n int) Option {
	return func(o *options) {
		o.pqSampleSize = n
	}
}

// WithSeed fixes every random choice made during construction. Builds with
// the same seed, data and a single thread are byte-identical.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithUniversalLabel sets the label that matches every filter.
func WithUniversalLabel(l labels.Label) Option {
	return func(o *options) {
		o.universal = l
		o.noUniversal = false
	}
}

// WithoutUniversalLabel disables universal-label matching.
func WithoutUniversalLabel() Option {
	return func(o *options) {
		o.noUniversal = true
	}
}

// WithCapacity bounds the number of slots. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithScratchPoolSize bounds the number of concurrent searches. Further
// searches block until a scratch is returned or their context ends.
func WithScratchPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithCompression sets the record-section compression used by Save.
func WithCompression(c layout.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithExpectedDimension makes Load and OpenFile reject files of another
// dimensionality with *ErrDimensionMismatch.
func WithExpectedDimension(dim int) Option {
	return func(o *options) {
		o.expectDim = dim
	}
}

// WithResourceController attaches a controller that bounds memory, background
// work and IO throughput. A nil controller means unlimited.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vamana.BasicMetricsCollector{}
//	idx, _ := vamana.New(128, vamana.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vamana.NewJSONLogger(slog.LevelInfo)
//	idx, _ := vamana.New(128, vamana.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		maxDegree:        DefaultMaxDegree,
		searchListSize:   DefaultSearchListSize,
		alpha:            DefaultAlpha,
		threads:          runtime.GOMAXPROCS(0),
		metric:           distance.MetricL2,
		pqCentroids:      DefaultPQCentroids,
		seed:             DefaultSeed,
		universal:        DefaultUniversalLabel,
		compression:      layout.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.threads <= 0 {
		o.threads = 1
	}
	if o.poolSize <= 0 {
		o.poolSize = max(o.threads, runtime.GOMAXPROCS(0))
	}
	return o
}

func (o *options) validate(dim int) error {
	switch {
	case dim <= 0:
		return &ErrInvalidDimension{Dimension: dim}
	case o.maxDegree <= 0:
		return fmt.Errorf("%w: max degree must be positive", ErrInvalidOption)
	case o.searchListSize <= 0:
		return fmt.Errorf("%w: search list size must be positive", ErrInvalidOption)
	case o.alpha < 1:
		return fmt.Errorf("%w: alpha must be at least 1", ErrInvalidOption)
	case o.pqChunks < 0 || o.pqChunks > dim:
		return fmt.Errorf("%w: pq chunks must be in [0, %d]", ErrInvalidOption, dim)
	case o.pqCentroids <= 0 || o.pqCentroids > 256:
		return fmt.Errorf("%w: pq centroids must be in [1, 256]", ErrInvalidOption)
	case o.capacity < 0:
		return fmt.Errorf("%w: capacity must not be negative", ErrInvalidOption)
	}
	if _, err := distance.Provider(o.metric); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	return nil
}

func (o *options) labelOptions() []labels.Option {
	if o.noUniversal {
		return []labels.Option{labels.WithoutUniversal()}
	}
	return []labels.Option{labels.WithUniversal(o.universal)}
}
