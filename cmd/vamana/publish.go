package main

import (
	"fmt"

	"github.com/hupe1980/vamana"
	"github.com/spf13/cobra"
)

func addStoreFlags(cmd *cobra.Command, f *storeFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.uri, "store", "", "blob store URI (file://, s3:// or minio://); defaults to storage.store")
	fl.StringVar(&f.region, "region", "", "AWS region of s3 stores")
	fl.StringVar(&f.commitTable, "commit-table", "", "DynamoDB table committing CURRENT of s3 stores")
}

func (f *storeFlags) resolve(a *app) error {
	if f.uri == "" {
		f.uri = a.cfg.Storage.Store
	}
	if f.uri == "" {
		return fmt.Errorf("no blob store: set --store or storage.store")
	}
	return nil
}

func newPublishCmd(a *app) *cobra.Command {
	var (
		index string
		sf    storeFlags
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload an index as a new snapshot and make it current",
		Long: `Upload --index to the blob store as snapshots/<uuid>.vmn, then point
CURRENT at it. Readers opening the store see either the previous or the new
snapshot, never a partial one.

Examples:
  vamana publish --index base.vmn --store s3://my-bucket/indexes/base
  vamana publish --index base.vmn --store s3://my-bucket/base --commit-table vamana-commits
  vamana publish --index base.vmn --store file:///srv/vamana/base`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := sf.resolve(a); err != nil {
				return err
			}
			store, err := openStore(ctx, sf)
			if err != nil {
				return err
			}

			ix, err := a.openIndex(ctx, index)
			if err != nil {
				return err
			}
			defer ix.Close()

			name, err := ix.Publish(ctx, store)
			if err != nil {
				return err
			}
			a.logger.Info("published snapshot", "store", sf.uri, "snapshot", name)
			fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "index file")
	addStoreFlags(cmd, &sf)
	_ = cmd.MarkFlagRequired("index")
	return cmd
}

func newPullCmd(a *app) *cobra.Command {
	var (
		out string
		sf  storeFlags
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the current snapshot of a blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := sf.resolve(a); err != nil {
				return err
			}
			store, err := openStore(ctx, sf)
			if err != nil {
				return err
			}

			ix, err := vamana.OpenBlob(ctx, store, a.runtimeOptions()...)
			if err != nil {
				return err
			}
			defer ix.Close()

			if err := ix.SaveFile(ctx, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %d vectors to %s\n", ix.Len(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "index file to write")
	cmd.Flags().IntVar(&sf.cacheBlocks, "cache-blocks", 0, "read through an LRU block cache of this many blocks")
	cmd.Flags().Int64Var(&sf.blockSize, "block-size", 1<<20, "cache block size in bytes")
	addStoreFlags(cmd, &sf)
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
