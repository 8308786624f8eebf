// Package config loads index, search and runtime settings from YAML.
//
// Example:
//
//	index:
//	  max_degree: 64
//	  search_list_size: 100
//	  alpha: 1.2
//	  filtered: true
//	  metric: l2
//	search:
//	  k: 10
//	  l: [10, 50, 100]
//	storage:
//	  compression: zstd
//	logging:
//	  format: json
//	  level: info
//	resources:
//	  memory_percent: 50
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/vamana"
	"github.com/hupe1980/vamana/distance"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the root of a configuration file.
type Config struct {
	Index     Index     `yaml:"index"`
	Search    Search    `yaml:"search"`
	Storage   Storage   `yaml:"storage"`
	Logging   Logging   `yaml:"logging"`
	Resources Resources `yaml:"resources"`
}

// Index holds the construction parameters.
type Index struct {
	MaxDegree         int     `yaml:"max_degree"`
	SearchListSize    int     `yaml:"search_list_size"`
	Alpha             float32 `yaml:"alpha"`
	Filtered          bool    `yaml:"filtered"`
	Threads           int     `yaml:"threads"`
	Metric            string  `yaml:"metric"`
	PQChunks          int     `yaml:"pq_chunks"`
	PQCentroids       int     `yaml:"pq_centroids"`
	PQTrainSampleSize int     `yaml:"pq_train_sample_size"`
	Seed              uint64  `yaml:"seed"`
	// UniversalLabel overrides the label matching every filter. A negative
	// value disables it.
	UniversalLabel *int64 `yaml:"universal_label"`
	Capacity       int    `yaml:"capacity"`
}

// Search holds query defaults.
type Search struct {
	K int   `yaml:"k"`
	L []int `yaml:"l"`
}

// Storage selects how saved indexes are written.
type Storage struct {
	Compression string `yaml:"compression"`
	// Store is a blob store URI such as s3://bucket/prefix,
	// minio://host:port/bucket/prefix or file:///path.
	Store string `yaml:"store"`
}

// Logging selects the log handler.
type Logging struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Resources bounds memory, background work and IO.
type Resources struct {
	// MemoryLimitBytes takes precedence over MemoryPercent.
	MemoryLimitBytes     int64 `yaml:"memory_limit_bytes"`
	MemoryPercent        int   `yaml:"memory_percent"`
	MaxBackgroundWorkers int64 `yaml:"max_background_workers"`
	IOLimitBytesPerSec   int64 `yaml:"io_limit_bytes_per_sec"`
}

// Default returns the configuration matching the index defaults.
func Default() Config {
	return Config{
		Index: Index{
			MaxDegree:      vamana.DefaultMaxDegree,
			SearchListSize: vamana.DefaultSearchListSize,
			Alpha:          vamana.DefaultAlpha,
			Metric:         distance.MetricL2.String(),
			PQCentroids:    vamana.DefaultPQCentroids,
			Seed:           vamana.DefaultSeed,
		},
		Search: Search{
			K: 10,
			L: []int{vamana.DefaultSearchListSize},
		},
		Storage: Storage{Compression: "none"},
		Logging: Logging{Format: "text", Level: "info"},
	}
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected. An empty document yields the defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(bytes.NewReader(data))
}

// Marshal encodes cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	ix := c.Index
	check(ix.MaxDegree > 0, "index.max_degree must be positive, got %d", ix.MaxDegree)
	check(ix.SearchListSize > 0, "index.search_list_size must be positive, got %d", ix.SearchListSize)
	check(ix.Alpha >= 1, "index.alpha must be at least 1, got %g", ix.Alpha)
	check(ix.Threads >= 0, "index.threads must not be negative, got %d", ix.Threads)
	check(ix.PQChunks >= 0, "index.pq_chunks must not be negative, got %d", ix.PQChunks)
	check(ix.PQCentroids > 0 && ix.PQCentroids <= 256, "index.pq_centroids must be in [1, 256], got %d", ix.PQCentroids)
	check(ix.Capacity >= 0, "index.capacity must not be negative, got %d", ix.Capacity)
	if ix.UniversalLabel != nil {
		check(*ix.UniversalLabel <= int64(^uint32(0)), "index.universal_label %d out of range", *ix.UniversalLabel)
	}
	if _, err := distance.ParseMetric(ix.Metric); err != nil {
		check(false, "index.metric: %v", err)
	}

	check(c.Search.K > 0, "search.k must be positive, got %d", c.Search.K)
	for _, l := range c.Search.L {
		check(l > 0, "search.l values must be positive, got %d", l)
	}

	if _, err := vamana.ParseCompression(c.Storage.Compression); err != nil {
		check(false, "storage.compression: %v", err)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		check(false, "logging.format must be text or json, got %q", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		check(false, "logging.level: %v", err)
	}

	r := c.Resources
	check(r.MemoryLimitBytes >= 0, "resources.memory_limit_bytes must not be negative")
	check(r.MemoryPercent >= 0 && r.MemoryPercent <= 100, "resources.memory_percent must be in [0, 100], got %d", r.MemoryPercent)
	check(r.MaxBackgroundWorkers >= 0, "resources.max_background_workers must not be negative")
	check(r.IOLimitBytesPerSec >= 0, "resources.io_limit_bytes_per_sec must not be negative")

	return errors.Join(errs...)
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return l, nil
}

// Logger builds the configured logger.
func (c Config) Logger() (*vamana.Logger, error) {
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(c.Logging.Format, "json") {
		return vamana.NewJSONLogger(level), nil
	}
	return vamana.NewTextLogger(level), nil
}

// ResourceController returns a controller for the configured limits, or nil
// when none is set.
func (c Config) ResourceController() *vamana.ResourceController {
	r := c.Resources
	var rc vamana.ResourceConfig
	switch {
	case r.MemoryLimitBytes > 0:
		rc.MemoryLimitBytes = r.MemoryLimitBytes
	case r.MemoryPercent > 0:
		rc = vamana.DefaultResourceConfig(r.MemoryPercent)
	case r.MaxBackgroundWorkers == 0 && r.IOLimitBytesPerSec == 0:
		return nil
	}
	rc.MaxBackgroundWorkers = r.MaxBackgroundWorkers
	rc.IOLimitBytesPerSec = r.IOLimitBytesPerSec
	return vamana.NewResourceController(rc)
}

// Options maps the index section, storage compression, logging and
// resources onto index options.
func (c Config) Options() ([]vamana.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	metric, err := distance.ParseMetric(c.Index.Metric)
	if err != nil {
		return nil, err
	}
	compression, err := vamana.ParseCompression(c.Storage.Compression)
	if err != nil {
		return nil, err
	}
	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}

	ix := c.Index
	opts := []vamana.Option{
		vamana.WithMaxDegree(ix.MaxDegree),
		vamana.WithSearchListSize(ix.SearchListSize),
		vamana.WithAlpha(ix.Alpha),
		vamana.WithFiltered(ix.Filtered),
		vamana.WithMetric(metric),
		vamana.WithPQ(ix.PQChunks),
		vamana.WithPQCentroids(ix.PQCentroids),
		vamana.WithSeed(ix.Seed),
		vamana.WithCapacity(ix.Capacity),
		vamana.WithCompression(compression),
		vamana.WithLogger(logger),
	}
	if ix.Threads > 0 {
		opts = append(opts, vamana.WithThreads(ix.Threads))
	}
	if ix.PQTrainSampleSize > 0 {
		opts = append(opts, vamana.WithPQTrainSampleSize(ix.PQTrainSampleSize))
	}
	if u := ix.UniversalLabel; u != nil {
		if *u < 0 {
			opts = append(opts, vamana.WithoutUniversalLabel())
		} else {
			opts = append(opts, vamana.WithUniversalLabel(vamana.Label(*u)))
		}
	}
	if rc := c.ResourceController(); rc != nil {
		opts = append(opts, vamana.WithResourceController(rc))
	}
	return opts, nil
}
