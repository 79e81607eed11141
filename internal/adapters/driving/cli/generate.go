package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/storage/jsonl"
	"github.com/dachslabs/qaforge/internal/core/services"
	"github.com/dachslabs/qaforge/internal/logger"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate question/answer candidates from context groups",
	Long: `Builds a bounded context group around every eligible anchor chunk
(document-local window plus filtered index neighbours) and asks the
generative model for grounded question/answer pairs. Candidates append
per document, so an interrupted run can resume.`,
	RunE: runGenerate,
}

var (
	generateInputDir  string
	generateOutputDir string
	generateIndexDir  string
)

func init() {
	generateCmd.Flags().StringVar(&generateInputDir, "input-dir", "", "Directory of annotated chunk JSONL files")
	generateCmd.Flags().StringVar(&generateOutputDir, "output-dir", "", "Output directory for candidate files")
	generateCmd.Flags().StringVar(&generateIndexDir, "index-dir", "", "Index directory for retrieved group members (optional)")
	_ = generateCmd.MarkFlagRequired("input-dir")
	_ = generateCmd.MarkFlagRequired("output-dir")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
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
	if generateIndexDir != "" {
		retriever, err = openRetriever(generateIndexDir)
		if err != nil {
			return err
		}
		defer retriever.Close()
	} else {
		logger.Info("no --index-dir given; groups use the document-local window only")
	}

	generator := services.NewGenerator(llm, prompts,
		services.NewGrouper(retriever, grouperConfig()),
		services.GeneratorConfig{
			MaxQAPerGroup:    cfg.Sampling.MaxQAPerGroup,
			MaxQAPerDocument: cfg.Sampling.MaxQAPerDocument,
			GlobalQALimit:    cfg.Sampling.GlobalQALimit,
			Resume:           cfg.Runtime.Resume,
			Workers:          cfg.Runtime.Workers,
			LogEvery:         cfg.Runtime.LogEvery,
			Temperature:      cfg.LLM.Temperature,
			TopP:             cfg.LLM.TopP,
			MaxTokens:        cfg.LLM.MaxTokens,
			MaxRetries:       cfg.LLM.MaxRetries,
			RatePerSecond:    cfg.LLM.RatePerSecond,
			LimitFiles:       cfg.Debug.LimitFiles,
			LimitChunks:      cfg.Debug.LimitChunks,
		},
	)

	res, err := generator.Run(ctx, jsonl.NewChunkStore(generateInputDir), jsonl.NewCandidateStore(generateOutputDir))
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	cmd.Printf("Generated %d candidates from %d groups across %d files (%d anchors, %d ineligible, %d too small, %d resumed, %d failed).\n",
		res.Candidates, res.Groups, res.Files, res.Anchors, res.Ineligible, res.SkippedSmall, res.Resumed, res.Failures)
	return nil
}
