package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/storage/jsonl"
	"github.com/dachslabs/qaforge/internal/core/services"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build a released dataset version from candidate files",
	Long: `Validates, filters and deduplicates all candidates, assigns stable
record IDs and writes the next dataset version plus a rejects file and
a changelog entry. Released versions are never modified in place.`,
	RunE: runDataset,
}

var (
	datasetInputDir  string
	datasetOutputDir string
	datasetWorkspace string
	datasetVersion   string
	datasetDryRun    bool
)

func init() {
	datasetCmd.Flags().StringVar(&datasetInputDir, "input-dir", "", "Directory of candidate JSONL files")
	datasetCmd.Flags().StringVar(&datasetOutputDir, "output-dir", "", "Output directory for dataset versions")
	datasetCmd.Flags().StringVar(&datasetWorkspace, "workspace", "", "Workspace name recorded on every record")
	datasetCmd.Flags().StringVar(&datasetVersion, "version", "", "Dataset version number (default: from config, usually auto)")
	datasetCmd.Flags().BoolVar(&datasetDryRun, "dry-run", false, "Validate and count without writing")
	_ = datasetCmd.MarkFlagRequired("input-dir")
	_ = datasetCmd.MarkFlagRequired("output-dir")

	rootCmd.AddCommand(datasetCmd)
}

func runDataset(cmd *cobra.Command, _ []string) error {
	version := cfg.Dataset.Version
	if datasetVersion != "" {
		version = datasetVersion
	}

	builder := services.NewDatasetBuilder(services.DatasetBuilderConfig{
		Name:                   cfg.Dataset.Name,
		SchemaVersion:          cfg.Dataset.SchemaVersion,
		Version:                version,
		IDStrategy:             cfg.Dataset.IDStrategy,
		IDZeroPad:              cfg.Dataset.IDZeroPad,
		WorkspaceAbbr:          cfg.Dataset.WorkspaceAbbr,
		MinQuestionChars:       cfg.Dataset.MinQuestionChars,
		MaxQuestionChars:       cfg.Dataset.MaxQuestionChars,
		MinAnswerChars:         cfg.Dataset.MinAnswerChars,
		MaxAnswerChars:         cfg.Dataset.MaxAnswerChars,
		LanguagesAllowed:       cfg.Filters.LanguagesAllowed,
		TrustLevelsAllowed:     cfg.Filters.TrustLevelsAllowed,
		ContentTypesAllowed:    cfg.Filters.ContentTypesAllowed,
		RequireNonemptySources: cfg.Dataset.RequireNonemptySources,
		DropIfLanguageMismatch: cfg.Dataset.DropIfLanguageMismatch,
		DedupKeys:              cfg.Dataset.DedupKeys,
		WriteChangelog:         cfg.Dataset.WriteChangelog,
		WriteRejects:           cfg.Dataset.WriteRejects,
		CreatedBy:              cfg.Dataset.CreatedBy,
		Workspace:              datasetWorkspace,
		Resume:                 cfg.Runtime.Resume,
		DryRun:                 datasetDryRun || cfg.Runtime.DryRun,
		LimitFiles:             cfg.Debug.LimitFiles,
		LimitExamples:          cfg.Debug.LimitChunks,
	})

	res, err := builder.Run(
		jsonl.NewCandidateStore(datasetInputDir),
		jsonl.NewDatasetStore(datasetOutputDir, cfg.Dataset.Name),
	)
	if err != nil {
		return fmt.Errorf("dataset build failed: %w", err)
	}

	if res.Path == "" {
		cmd.Printf("Dry run v%d: %d read, %d kept, %d rejected, %d deduplicated, %d resumed.\n",
			res.Version, res.Read, res.Kept, res.Rejected, res.Deduped, res.Resumed)
		return nil
	}
	cmd.Printf("Released %s: %d kept of %d read (%d rejected, %d deduplicated, %d resumed).\n",
		res.Path, res.Kept, res.Read, res.Rejected, res.Deduped, res.Resumed)
	if res.RejectsPath != "" {
		cmd.Printf("Rejects written to %s.\n", res.RejectsPath)
	}
	return nil
}
