package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/index/flat"
	"github.com/dachslabs/qaforge/internal/adapters/driven/storage/jsonl"
	"github.com/dachslabs/qaforge/internal/core/services"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the flat vector index over content-bearing chunks",
	Long: `Embeds every content-bearing chunk and writes the index artifacts
(binary vectors, TOML manifest, JSONL entry side-table) to the index
directory. Builds are wholesale: a rebuild replaces the old artifacts.`,
	RunE: runIndex,
}

var (
	indexInputDir string
	indexDir      string
)

func init() {
	indexCmd.Flags().StringVar(&indexInputDir, "input-dir", "", "Directory of chunk JSONL files")
	indexCmd.Flags().StringVar(&indexDir, "index-dir", "", "Output directory for index artifacts")
	_ = indexCmd.MarkFlagRequired("input-dir")
	_ = indexCmd.MarkFlagRequired("index-dir")

	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	embedder, err := newEmbeddingService()
	if err != nil {
		return err
	}
	defer embedder.Close()

	ctx := cmd.Context()
	if err := embedder.Ping(ctx); err != nil {
		return fmt.Errorf("embedding backend unavailable: %w", err)
	}

	builder := services.NewIndexBuilder(embedder, cfg.Index.Normalize, cfg.Index.BatchSize)
	build, err := builder.Build(ctx, jsonl.NewChunkStore(indexInputDir), cfg.Debug.LimitFiles, cfg.Debug.LimitChunks)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}

	ix, err := flat.New(build.Manifest)
	if err != nil {
		return err
	}
	for _, v := range build.Vectors {
		if err := ix.Add(v); err != nil {
			return err
		}
	}

	paths := flat.Paths{Dir: indexDir, Name: cfg.Index.Name}
	if err := flat.Save(paths, ix, build.Entries); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	cmd.Printf("Indexed %d vectors (%d dimensions, metric %s) into %s.\n",
		build.Manifest.Vectors, build.Manifest.Dimensions, build.Manifest.Metric, indexDir)
	return nil
}
