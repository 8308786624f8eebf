package main

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/hupe1980/vamana"
	"github.com/hupe1980/vamana/internal/labels"
	"github.com/hupe1980/vamana/internal/vecio"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

type searchFlags struct {
	index   string
	queries string
	filters string
	filter  int64
	truth   string
	k       int
	ls      []int
	threads int
}

func newSearchCmd(a *app) *cobra.Command {
	f := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query an index and report throughput, latency and recall",
		Long: `Run every query of --queries once per search list size and print one
row per size. Sizes below K are skipped.

--filters names a label file with one label set per query; a query matches
vectors carrying any label of its set. --filter applies one label to every
query. With --gt, recall@K is computed against the ground truth file.

Examples:
  vamana search --index base.vmn --queries query.fbin --gt truth.ibin -K 10 -L 10,50,100
  vamana search --index base.vmn --queries query.fbin --filters query.labels -K 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.index, "index", "i", "", "index file")
	fl.StringVarP(&f.queries, "queries", "q", "", "query file (.fbin)")
	fl.StringVar(&f.filters, "filters", "", "label file with one filter per query")
	fl.Int64Var(&f.filter, "filter", -1, "label applied to every query (negative disables)")
	fl.StringVar(&f.truth, "gt", "", "ground truth file")
	fl.IntVarP(&f.k, "K", "K", 0, "neighbors per query (defaults to search.k)")
	fl.IntSliceVarP(&f.ls, "L", "L", nil, "search list sizes (defaults to search.l)")
	fl.IntVarP(&f.threads, "threads", "T", 0, "concurrent queries (0 means index threads)")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("queries")

	return cmd
}

// sweep is the outcome of one pass over all queries at a fixed L.
type sweep struct {
	L           int
	QPS         float64
	Mean        time.Duration
	P99         time.Duration
	Hops        float64
	Comparisons float64
	Results     [][]vamana.Result
}

func runSearch(cmd *cobra.Command, a *app, f *searchFlags) error {
	ctx := cmd.Context()

	k := f.k
	if k <= 0 {
		k = a.cfg.Search.K
	}
	ls := f.ls
	if len(ls) == 0 {
		ls = a.cfg.Search.L
	}

	queries, err := vecio.ReadVectorsFile(f.queries)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.queries, err)
	}

	filters := make([][]labels.Label, len(queries))
	switch {
	case f.filters != "":
		sets, err := readLabelFile(f.filters, "text", 0)
		if err != nil {
			return err
		}
		if len(sets) != len(queries) {
			return fmt.Errorf("%s has %d filters for %d queries", f.filters, len(sets), len(queries))
		}
		for i, s := range sets {
			filters[i] = s
		}
	case f.filter >= 0:
		for i := range filters {
			filters[i] = []labels.Label{labels.Label(f.filter)}
		}
	}

	var truth *vecio.Truth
	if f.truth != "" {
		if truth, err = vecio.ReadTruthFile(f.truth); err != nil {
			return fmt.Errorf("read %s: %w", f.truth, err)
		}
		if len(truth.IDs) < len(queries) {
			return fmt.Errorf("%s has %d rows for %d queries", f.truth, len(truth.IDs), len(queries))
		}
		if truth.K < k {
			return fmt.Errorf("%s holds %d neighbors per query, need %d", f.truth, truth.K, k)
		}
	}

	var extra []vamana.Option
	if f.threads > 0 {
		extra = append(extra, vamana.WithThreads(f.threads))
	}
	ix, err := a.openIndex(ctx, f.index, extra...)
	if err != nil {
		return err
	}
	defer ix.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
	header := "L\tQPS\tmean us\tp99 us\thops\tcmps\t"
	if truth != nil {
		header += fmt.Sprintf("recall@%d\t", k)
	}
	fmt.Fprintln(w, header)

	for _, l := range ls {
		if l < k {
			a.logger.Warn("skipping search list size below K", "L", l, "K", k)
			continue
		}
		s, err := runSweep(ctx, ix, queries, filters, k, l)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t", s.L, s.QPS,
			float64(s.Mean.Nanoseconds())/1e3, float64(s.P99.Nanoseconds())/1e3, s.Hops, s.Comparisons)
		if truth != nil {
			fmt.Fprintf(w, "%.4f\t", recall(s.Results, truth, k))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func runSweep(ctx context.Context, ix *vamana.Index, queries [][]float32, filters [][]labels.Label, k, l int) (*sweep, error) {
	n := len(queries)
	stats := make([]vamana.SearchStats, n)
	batch := make([]vamana.Query, n)
	for i, q := range queries {
		batch[i] = vamana.Query{Vector: q, Labels: filters[i], Stats: &stats[i]}
	}

	start := time.Now()
	results, err := ix.SearchBatch(ctx, batch, k, vamana.WithL(l))
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	s := &sweep{L: l, Results: results}
	if n == 0 {
		return s, nil
	}

	latencies := make([]float64, n)
	hops := make([]float64, n)
	cmps := make([]float64, n)
	for i, st := range stats {
		latencies[i] = float64(st.Latency)
		hops[i] = float64(st.Hops)
		cmps[i] = float64(st.Comparisons)
	}
	s.QPS = float64(n) / elapsed.Seconds()
	s.Mean = time.Duration(stat.Mean(latencies, nil))
	slices.Sort(latencies)
	s.P99 = time.Duration(stat.Quantile(0.99, stat.Empirical, latencies, nil))
	s.Hops = stat.Mean(hops, nil)
	s.Comparisons = stat.Mean(cmps, nil)
	return s, nil
}

// recall returns the mean fraction of the first k truth ids found among the
// results of each query.
func recall(results [][]vamana.Result, truth *vecio.Truth, k int) float64 {
	if len(results) == 0 || k == 0 {
		return 0
	}
	var sum float64
	for i, res := range results {
		want := make(map[uint64]struct{}, k)
		for _, id := range truth.IDs[i][:k] {
			want[uint64(id)] = struct{}{}
		}
		hit := 0
		for _, r := range res {
			if _, ok := want[r.ID]; ok {
				hit++
			}
		}
		sum += float64(hit) / float64(k)
	}
	return sum / float64(len(results))
}
