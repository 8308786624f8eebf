package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/vamana/internal/labels"
	"github.com/spf13/cobra"
)

func newConvertLabelsCmd(_ *app) *cobra.Command {
	var (
		in, out, from, to string
		offset            uint32
	)

	cmd := &cobra.Command{
		Use:   "convert-labels",
		Short: "Convert label files between the text and sparse matrix formats",
		Long: `Convert label files between the text format (one comma separated set
per line) and the CSR sparse matrix format, where the column index of every
stored entry is a label. --offset is added to column indices when reading a
matrix and subtracted when writing one.

Examples:
  vamana convert-labels --in base.spmat --out base.labels
  vamana convert-labels --in base.labels --from text --to spmat --offset 1 --out base.spmat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sets, err := readLabelFile(in, from, offset)
			if err != nil {
				return err
			}
			if err := writeLabelFile(out, to, sets, offset); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "converted %d label sets to %s\n", len(sets), out)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&in, "in", "", "input label file")
	fl.StringVar(&out, "out", "", "output label file")
	fl.StringVar(&from, "from", "spmat", "input format: text or spmat")
	fl.StringVar(&to, "to", "text", "output format: text or spmat")
	fl.Uint32Var(&offset, "offset", 0, "label of matrix column 0")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func writeLabelFile(path, format string, sets []labels.Set, offset labels.Label) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch format {
	case "text", "":
		err = labels.WriteText(f, sets)
	case "spmat":
		var cols int64
		for _, s := range sets {
			if len(s) > 0 && s[len(s)-1] >= offset {
				cols = max(cols, int64(s[len(s)-1]-offset)+1)
			}
		}
		err = labels.WriteSpmat(f, sets, cols, offset)
	default:
		err = fmt.Errorf("unknown label format %q", format)
	}
	if err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
