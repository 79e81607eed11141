package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/storage/jsonl"
	"github.com/dachslabs/qaforge/internal/core/services"
)

var prefilterCmd = &cobra.Command{
	Use:   "prefilter",
	Short: "Partition chunks into structural and content-bearing files",
	Long: `Recognises structural chunks (headings, captions, page furniture)
deterministically and annotates them without any model call. Content-bearing
chunks pass through unchanged for the annotate stage.`,
	RunE: runPrefilter,
}

var (
	prefilterInputDir      string
	prefilterStructuralDir string
	prefilterContentDir    string
	prefilterTaxonomyPath  string
)

func init() {
	prefilterCmd.Flags().StringVar(&prefilterInputDir, "input-dir", "", "Directory of chunk JSONL files")
	prefilterCmd.Flags().StringVar(&prefilterStructuralDir, "structural-dir", "", "Output directory for structural chunks")
	prefilterCmd.Flags().StringVar(&prefilterContentDir, "content-dir", "", "Output directory for content-bearing chunks")
	prefilterCmd.Flags().StringVar(&prefilterTaxonomyPath, "taxonomy", "", "Path to the taxonomy YAML file")
	_ = prefilterCmd.MarkFlagRequired("input-dir")
	_ = prefilterCmd.MarkFlagRequired("structural-dir")
	_ = prefilterCmd.MarkFlagRequired("content-dir")
	_ = prefilterCmd.MarkFlagRequired("taxonomy")

	rootCmd.AddCommand(prefilterCmd)
}

func runPrefilter(cmd *cobra.Command, _ []string) error {
	taxonomy, err := loadTaxonomy(prefilterTaxonomyPath)
	if err != nil {
		return err
	}

	f := services.NewPreFilter(cfg.Annotate.MinContentChars, taxonomy)
	res, err := f.Partition(
		jsonl.NewChunkStore(prefilterInputDir),
		jsonl.NewChunkStore(prefilterStructuralDir),
		jsonl.NewChunkStore(prefilterContentDir),
		cfg.Debug.LimitFiles,
		cfg.Debug.LimitChunks,
	)
	if err != nil {
		return fmt.Errorf("prefilter failed: %w", err)
	}

	cmd.Printf("Processed %d files, %d chunks: %d structural, %d content-bearing.\n",
		res.Files, res.Chunks, res.Structural, res.Content)
	return nil
}
