package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/vamana"
	"github.com/hupe1980/vamana/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
index:
  max_degree: 8
  search_list_size: 16
  alpha: 1.5
  filtered: true
  threads: 1
  metric: cosine
  seed: 7
  universal_label: -1
search:
  k: 5
  l: [5, 10]
storage:
  compression: lz4
logging:
  format: json
  level: warn
resources:
  memory_limit_bytes: 1073741824
  max_background_workers: 2
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Index.MaxDegree)
	assert.Equal(t, 16, cfg.Index.SearchListSize)
	assert.InDelta(t, 1.5, cfg.Index.Alpha, 1e-6)
	assert.True(t, cfg.Index.Filtered)
	assert.Equal(t, "cosine", cfg.Index.Metric)
	require.NotNil(t, cfg.Index.UniversalLabel)
	assert.Equal(t, int64(-1), *cfg.Index.UniversalLabel)
	assert.Equal(t, vamana.DefaultPQCentroids, cfg.Index.PQCentroids, "defaults survive partial documents")

	assert.Equal(t, 5, cfg.Search.K)
	assert.Equal(t, []int{5, 10}, cfg.Search.L)
	assert.Equal(t, "lz4", cfg.Storage.Compression)
	assert.Equal(t, int64(1<<30), cfg.Resources.MemoryLimitBytes)
}

func TestParseEmptyYieldsDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("index:\n  max_dgree: 8\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"max degree", func(c *Config) { c.Index.MaxDegree = 0 }, "index.max_degree"},
		{"alpha", func(c *Config) { c.Index.Alpha = 0.5 }, "index.alpha"},
		{"centroids", func(c *Config) { c.Index.PQCentroids = 300 }, "index.pq_centroids"},
		{"metric", func(c *Config) { c.Index.Metric = "manhattan" }, "index.metric"},
		{"universal", func(c *Config) { u := int64(1) << 33; c.Index.UniversalLabel = &u }, "index.universal_label"},
		{"k", func(c *Config) { c.Search.K = 0 }, "search.k"},
		{"l", func(c *Config) { c.Search.L = []int{10, -1} }, "search.l"},
		{"compression", func(c *Config) { c.Storage.Compression = "gzip" }, "storage.compression"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"memory percent", func(c *Config) { c.Resources.MemoryPercent = 101 }, "resources.memory_percent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Index.MaxDegree = -1
	cfg.Search.K = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.max_degree")
	assert.Contains(t, err.Error(), "search.k")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vamana.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Index.MaxDegree)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	again, err := Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestResourceController(t *testing.T) {
	assert.Nil(t, Default().ResourceController())

	cfg := Default()
	cfg.Resources.MemoryLimitBytes = 1 << 20
	rc := cfg.ResourceController()
	require.NotNil(t, rc)
	require.Error(t, rc.AcquireMemory(2<<20))

	cfg = Default()
	cfg.Resources.MaxBackgroundWorkers = 1
	assert.NotNil(t, cfg.ResourceController())
}

func TestOptionsBuildIndex(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)

	ix, err := vamana.New(2, opts...)
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(1, []float32{1, 0}, 0))
	require.NoError(t, ix.Add(2, []float32{0, 1}, 1))
	require.NoError(t, ix.Add(3, []float32{1, 1}, 1))
	require.NoError(t, ix.Build(context.Background()))

	st := ix.Stats()
	assert.Equal(t, 8, st.MaxDegree)
	assert.True(t, st.Filtered)
	assert.Equal(t, distance.MetricCosine, st.Metric)

	// With the universal label disabled, label 0 is an ordinary label.
	res, err := ix.Search(context.Background(), []float32{0, 1}, 3, vamana.WithLabel(1))
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.NotEqual(t, uint64(1), r.ID)
	}
}

func TestLogger(t *testing.T) {
	cfg := Default()
	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, l)

	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
}
