package main

import (
	"fmt"
	"os"
	"time"

	"github.com/hupe1980/vamana"
	"github.com/hupe1980/vamana/internal/labels"
	"github.com/hupe1980/vamana/internal/vecio"
	"github.com/spf13/cobra"
)

type buildFlags struct {
	data         string
	labels       string
	labelsFormat string
	labelOffset  uint32
	out          string

	maxDegree      int
	searchListSize int
	alpha          float32
	filtered       bool
	threads        int
	metric         string
	pqChunks       int
	compression    string
	universal      int64
}

func newBuildCmd(a *app) *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an index from a vector file",
		Long: `Build a graph index over every vector of --data. Vector i gets id i.
With --labels, line i of the label file holds the labels of vector i.

Flags override the index and storage sections of --config.

Examples:
  vamana build --data base.fbin --out base.vmn
  vamana build --data base.fbin --labels base.labels --filtered --out base.vmn
  vamana build --data base.fbin --pq-chunks 16 --compression zstd --out base.vmn`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.data, "data", "d", "", "vector file (.fbin)")
	fl.StringVar(&f.labels, "labels", "", "label file, one set per vector")
	fl.StringVar(&f.labelsFormat, "labels-format", "text", "label file format: text or spmat")
	fl.Uint32Var(&f.labelOffset, "label-offset", 0, "added to spmat column indices")
	fl.StringVarP(&f.out, "out", "o", "", "index file to write")
	fl.IntVarP(&f.maxDegree, "max-degree", "R", vamana.DefaultMaxDegree, "maximum out-degree")
	fl.IntVarP(&f.searchListSize, "search-list-size", "L", vamana.DefaultSearchListSize, "construction search list size")
	fl.Float32Var(&f.alpha, "alpha", vamana.DefaultAlpha, "pruning slack of the second pass")
	fl.BoolVar(&f.filtered, "filtered", false, "label-aware construction")
	fl.IntVarP(&f.threads, "threads", "T", 0, "construction threads (0 means all cores)")
	fl.StringVar(&f.metric, "metric", "l2", "distance metric: l2, inner_product or cosine")
	fl.IntVar(&f.pqChunks, "pq-chunks", 0, "product quantization chunks (0 disables)")
	fl.StringVar(&f.compression, "compression", "none", "record compression: none, lz4 or zstd")
	fl.Int64Var(&f.universal, "universal-label", int64(vamana.DefaultUniversalLabel), "label matching every filter (negative disables)")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

// merge copies explicitly set flags over the configuration.
func (f *buildFlags) merge(cmd *cobra.Command, a *app) {
	ix := &a.cfg.Index
	changed := cmd.Flags().Changed
	if changed("max-degree") {
		ix.MaxDegree = f.maxDegree
	}
	if changed("search-list-size") {
		ix.SearchListSize = f.searchListSize
	}
	if changed("alpha") {
		ix.Alpha = f.alpha
	}
	if changed("filtered") {
		ix.Filtered = f.filtered
	}
	if changed("threads") {
		ix.Threads = f.threads
	}
	if changed("metric") {
		ix.Metric = f.metric
	}
	if changed("pq-chunks") {
		ix.PQChunks = f.pqChunks
	}
	if changed("universal-label") {
		u := f.universal
		ix.UniversalLabel = &u
	}
	if changed("compression") {
		a.cfg.Storage.Compression = f.compression
	}
}

func runBuild(cmd *cobra.Command, a *app, f *buildFlags) error {
	ctx := cmd.Context()
	f.merge(cmd, a)

	opts, err := a.cfg.Options()
	if err != nil {
		return err
	}

	vectors, err := vecio.ReadVectorsFile(f.data)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.data, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("%s holds no vectors", f.data)
	}

	var sets []labels.Set
	if f.labels != "" {
		if sets, err = readLabelFile(f.labels, f.labelsFormat, f.labelOffset); err != nil {
			return err
		}
		if len(sets) != len(vectors) {
			return fmt.Errorf("%s has %d label sets for %d vectors", f.labels, len(sets), len(vectors))
		}
	}

	ix, err := vamana.New(len(vectors[0]), opts...)
	if err != nil {
		return err
	}
	defer ix.Close()

	for i, v := range vectors {
		var set labels.Set
		if sets != nil {
			set = sets[i]
		}
		if err := ix.Add(uint64(i), v, set...); err != nil {
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}

	start := time.Now()
	if err := ix.Build(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := ix.SaveFile(ctx, f.out); err != nil {
		return err
	}

	st := ix.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "built %d vectors of dimension %d in %s\n", st.Count, st.Dimension, elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "average degree %.2f, max degree %d, %d labels, %d entry points\n",
		st.AvgDegree, st.MaxObservedDegree, st.Labels, st.EntryPoints)
	fmt.Fprintf(out, "wrote %s\n", f.out)
	return nil
}

func readLabelFile(path, format string, offset labels.Label) ([]labels.Set, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var sets []labels.Set
	switch format {
	case "text", "":
		sets, err = labels.ParseText(r)
	case "spmat":
		sets, err = labels.ReadSpmat(r, offset)
	default:
		return nil, fmt.Errorf("unknown label format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return sets, nil
}
