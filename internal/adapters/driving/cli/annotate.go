package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/storage/jsonl"
	"github.com/dachslabs/qaforge/internal/core/services"
	"github.com/dachslabs/qaforge/internal/logger"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotate content-bearing chunks with semantic metadata",
	Long: `Fills the semantic block of every content-bearing chunk via the
generative model, constrained by the taxonomy. Optionally supplies
document-local and index-retrieved context to the model. Chunks already
annotated in the output directory are skipped when resume is on.`,
	RunE: runAnnotate,
}

var (
	annotateInputDir     string
	annotateOutputDir    string
	annotateTaxonomyPath string
	annotateIndexDir     string
)

func init() {
	annotateCmd.Flags().StringVar(&annotateInputDir, "input-dir", "", "Directory of chunk JSONL files")
	annotateCmd.Flags().StringVar(&annotateOutputDir, "output-dir", "", "Output directory for annotated chunks")
	annotateCmd.Flags().StringVar(&annotateTaxonomyPath, "taxonomy", "", "Path to the taxonomy YAML file")
	annotateCmd.Flags().StringVar(&annotateIndexDir, "index-dir", "", "Index directory for retrieved context (optional)")
	_ = annotateCmd.MarkFlagRequired("input-dir")
	_ = annotateCmd.MarkFlagRequired("output-dir")
	_ = annotateCmd.MarkFlagRequired("taxonomy")

	rootCmd.AddCommand(annotateCmd)
}

func runAnnotate(cmd *cobra.Command, _ []string) error {
	taxonomy, err := loadTaxonomy(annotateTaxonomyPath)
	if err != nil {
		return err
	}
	prompts, err := newPromptStore()
	if err != nil {
		return err
	}
	llm, err := newLLMService()
	if err != nil {
		return err
	}
	defer llm.Close()

	ctx := cmd.Context()
	if err := llm.Ping(ctx); err != nil {
		return fmt.Errorf("llm backend unavailable: %w", err)
	}

	var retriever *services.Retriever
	if cfg.Annotate.UseRetrievedContext && annotateIndexDir != "" {
		retriever, err = openRetriever(annotateIndexDir)
		if err != nil {
			return err
		}
		defer retriever.Close()
	} else if cfg.Annotate.UseRetrievedContext {
		logger.Warn("use_retrieved_context is on but no --index-dir given; annotating with local context only")
	}

	annotator := services.NewAnnotator(
		llm, prompts, taxonomy,
		services.NewPreFilter(cfg.Annotate.MinContentChars, taxonomy),
		retriever,
		services.AnnotatorConfig{
			MaxChars:            cfg.Annotate.MaxChars,
			MaxContextChars:     cfg.Annotate.MaxContextChars,
			UseLocalContext:     cfg.Annotate.UseLocalContext,
			UseRetrievedContext: cfg.Annotate.UseRetrievedContext,
			RetrievedTopK:       cfg.Annotate.RetrievedTopK,
			RetrievedMax:        cfg.Annotate.RetrievedMax,
			SimilarityThreshold: cfg.Neighbors.SimilarityThreshold,
			LanguagesAllowed:    cfg.Filters.LanguagesAllowed,
			TrustLevelsAllowed:  cfg.Filters.TrustLevelsAllowed,
			ContentTypesAllowed: cfg.Filters.ContentTypesAllowed,
			Resume:              cfg.Runtime.Resume,
			Workers:             cfg.Runtime.Workers,
			LogEvery:            cfg.Runtime.LogEvery,
			Temperature:         cfg.LLM.Temperature,
			MaxTokens:           cfg.LLM.MaxTokens,
			MaxRetries:          cfg.LLM.MaxRetries,
			RatePerSecond:       cfg.LLM.RatePerSecond,
			LimitFiles:          cfg.Debug.LimitFiles,
			LimitChunks:         cfg.Debug.LimitChunks,
		},
	)

	res, err := annotator.Run(ctx, jsonl.NewChunkStore(annotateInputDir), jsonl.NewChunkStore(annotateOutputDir))
	if err != nil {
		return fmt.Errorf("annotation failed: %w", err)
	}

	cmd.Printf("Annotated %d files, %d chunks: %d model, %d structural, %d fallback, %d resumed.\n",
		res.Files, res.Chunks, res.Annotated, res.Structural, res.Fallback, res.Skipped)
	return nil
}
