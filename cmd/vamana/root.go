package main

import (
	"context"

	"github.com/hupe1980/vamana"
	"github.com/hupe1980/vamana/config"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand once the persistent flags
// are parsed.
type app struct {
	configPath string
	logFormat  string
	logLevel   string

	cfg    config.Config
	logger *vamana.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "vamana",
		Short: "Filtered Vamana approximate nearest neighbor indexes",
		Long: `vamana builds graph indexes over float32 vectors with optional label
filters and product quantization, and queries, inspects and publishes them.

Vectors are read from .fbin files (int32 n, int32 dim, n*dim float32).
Labels are read from text files with one comma separated set per line.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newBuildCmd(a),
		newSearchCmd(a),
		newConvertLabelsCmd(a),
		newProfileCmd(a),
		newComponentsCmd(a),
		newPublishCmd(a),
		newPullCmd(a),
		newStatsCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// runtimeOptions are the options that apply to an index loaded from disk.
func (a *app) runtimeOptions() []vamana.Option {
	opts := []vamana.Option{vamana.WithLogger(a.logger)}
	if a.cfg.Index.Threads > 0 {
		opts = append(opts, vamana.WithThreads(a.cfg.Index.Threads))
	}
	if rc := a.cfg.ResourceController(); rc != nil {
		opts = append(opts, vamana.WithResourceController(rc))
	}
	return opts
}

func (a *app) openIndex(ctx context.Context, path string, extra ...vamana.Option) (*vamana.Index, error) {
	return vamana.OpenFile(ctx, path, append(a.runtimeOptions(), extra...)...)
}
