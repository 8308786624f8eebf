package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/hupe1980/vamana"
	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var index string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := a.openIndex(cmd.Context(), index)
			if err != nil {
				return err
			}
			defer ix.Close()

			st := ix.Stats()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "dimension\t%d\n", st.Dimension)
			fmt.Fprintf(w, "metric\t%s\n", st.Metric)
			fmt.Fprintf(w, "vectors\t%d\n", st.Count)
			fmt.Fprintf(w, "deleted\t%d\n", st.Deleted)
			fmt.Fprintf(w, "slots\t%d\n", st.Slots)
			fmt.Fprintf(w, "max degree\t%d\n", st.MaxDegree)
			fmt.Fprintf(w, "average degree\t%.2f\n", st.AvgDegree)
			fmt.Fprintf(w, "observed max degree\t%d\n", st.MaxObservedDegree)
			fmt.Fprintf(w, "medoid\t%d\n", st.Medoid)
			fmt.Fprintf(w, "labels\t%d\n", st.Labels)
			fmt.Fprintf(w, "entry points\t%d\n", st.EntryPoints)
			fmt.Fprintf(w, "filtered\t%t\n", st.Filtered)
			fmt.Fprintf(w, "pq chunks\t%d\n", st.PQChunks)
			fmt.Fprintf(w, "mapped\t%t\n", st.Mapped)
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "index file")
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	var (
		index string
		label uint32
		top   int
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Report connectivity of the subgraph of one label",
		Long: `Compute degree statistics of the subgraph induced by the vectors
matching --label, then the number of those vectors reachable from the --top
best connected ones without leaving the label.

Example:
  vamana profile --index base.vmn --label 3 --top 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := a.openIndex(cmd.Context(), index)
			if err != nil {
				return err
			}
			defer ix.Close()

			p, err := ix.ProfileLabel(label, top)
			if err != nil {
				return err
			}
			printProfile(cmd, p)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&index, "index", "i", "", "index file")
	fl.Uint32Var(&label, "label", 0, "label to profile")
	fl.IntVar(&top, "top", 10, "number of start points")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func printProfile(cmd *cobra.Command, p vamana.LabelProfile) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "label %d: %d members\n", p.Label, p.Members)
	fmt.Fprintf(out, "degree min %d max %d mean %.2f stddev %.2f median %.1f, %d without member neighbors\n",
		p.MinDegree, p.MaxDegree, p.MeanDegree, p.StdDevDegree, p.MedianDegree, p.Isolated)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "start\tdegree\treachable\t")
	for _, s := range p.Starts {
		fmt.Fprintf(w, "%d\t%d\t%d\t\n", s.ID, s.Degree, s.Reachable)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "reachable from all starts: %d (%.2f%%)\n", p.Reachable, 100*p.Coverage)
}

func newComponentsCmd(a *app) *cobra.Command {
	var (
		index string
		label uint32
		show  int
	)

	cmd := &cobra.Command{
		Use:   "components",
		Short: "List strongly connected components of the subgraph of one label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := a.openIndex(cmd.Context(), index)
			if err != nil {
				return err
			}
			defer ix.Close()

			comps, err := ix.Components(label)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "label %d: %d components\n", label, len(comps))
			for i, c := range comps {
				if i == show {
					fmt.Fprintf(out, "... %d more\n", len(comps)-show)
					break
				}
				fmt.Fprintf(out, "%d\t%d members, first %d\n", i, len(c), c[0])
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&index, "index", "i", "", "index file")
	fl.Uint32Var(&label, "label", 0, "label whose subgraph is analyzed")
	fl.IntVar(&show, "show", 10, "number of components to list")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}
