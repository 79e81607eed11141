package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/storage/jsonl"
	"github.com/dachslabs/qaforge/internal/core/services"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Corpus quality reports",
}

var statsSemanticCmd = &cobra.Command{
	Use:   "semantic",
	Short: "Report annotation quality over a chunk directory",
	RunE:  runStatsSemantic,
}

var statsCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Report candidate pool quality",
	RunE:  runStatsCandidates,
}

var (
	statsChunkDir     string
	statsCandidateDir string
	statsTopN         int
	statsJSON         bool
)

func init() {
	statsSemanticCmd.Flags().StringVar(&statsChunkDir, "input-dir", "", "Directory of annotated chunk JSONL files")
	_ = statsSemanticCmd.MarkFlagRequired("input-dir")

	statsCandidatesCmd.Flags().StringVar(&statsChunkDir, "chunk-dir", "", "Directory of annotated chunk JSONL files")
	statsCandidatesCmd.Flags().StringVar(&statsCandidateDir, "input-dir", "", "Directory of candidate JSONL files")
	_ = statsCandidatesCmd.MarkFlagRequired("chunk-dir")
	_ = statsCandidatesCmd.MarkFlagRequired("input-dir")

	statsCmd.PersistentFlags().IntVar(&statsTopN, "top", 10, "Labels to show per category")
	statsCmd.PersistentFlags().BoolVar(&statsJSON, "json", false, "Emit the report as JSON")

	statsCmd.AddCommand(statsSemanticCmd)
	statsCmd.AddCommand(statsCandidatesCmd)
	rootCmd.AddCommand(statsCmd)
}

func runStatsSemantic(cmd *cobra.Command, _ []string) error {
	report, err := services.NewStatsBuilder(statsTopN).Run(jsonl.NewChunkStore(statsChunkDir), nil)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	if statsJSON {
		return printJSON(cmd, report.Chunks)
	}
	printChunkStats(cmd, &report.Chunks)
	return nil
}

func runStatsCandidates(cmd *cobra.Command, _ []string) error {
	report, err := services.NewStatsBuilder(statsTopN).Run(
		jsonl.NewChunkStore(statsChunkDir),
		jsonl.NewCandidateStore(statsCandidateDir),
	)
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	if statsJSON {
		return printJSON(cmd, report.Candidates)
	}
	printCandidateStats(cmd, &report.Candidates)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func printChunkStats(cmd *cobra.Command, cs *services.ChunkStats) {
	cmd.Printf("Files: %d  Chunks: %d\n", cs.Files, cs.Chunks)
	cmd.Printf("Annotated: %d  Structural: %d  Pending: %d\n", cs.Annotated, cs.Structural, cs.Pending)
	cmd.Printf("Empty summaries: %d  Empty key facts: %d  Empty domains: %d\n",
		cs.EmptySummary, cs.EmptyKeyFacts, cs.EmptyDomains)
	if cs.StructuralLeakage > 0 {
		cmd.Printf("Suspected structural leakage: %d model-annotated chunks carry a structural role\n",
			cs.StructuralLeakage)
	}
	printLabelCounts(cmd, "Languages", cs.Languages)
	printLabelCounts(cmd, "Trust levels", cs.TrustLevels)
	printLabelCounts(cmd, "Provenance", cs.Provenance)
	printLabelCounts(cmd, "Content types", cs.ContentTypes)
	printLabelCounts(cmd, "Domains", cs.Domains)
	printLabelCounts(cmd, "Artifact roles", cs.ArtifactRoles)
	printLabelCounts(cmd, "Chunk roles", cs.ChunkRoles)
}

func printCandidateStats(cmd *cobra.Command, qs *services.CandidateStats) {
	cmd.Printf("Files: %d  Candidates: %d  Anchors: %d\n", qs.Files, qs.Candidates, qs.Anchors)
	if qs.Anchors > 0 {
		cmd.Printf("Per anchor: min %d, max %d, avg %.2f, gini %.3f\n",
			qs.MinPerAnchor, qs.MaxPerAnchor, qs.AvgPerAnchor, qs.AnchorGini)
	}
	printLabelCounts(cmd, "Difficulties", qs.Difficulties)
	printLabelCounts(cmd, "Languages", qs.Languages)
}

func printLabelCounts(cmd *cobra.Command, title string, counts []services.LabelCount) {
	if len(counts) == 0 {
		return
	}
	cmd.Printf("%s:\n", title)
	for _, lc := range counts {
		cmd.Printf("  %-30s %d\n", lc.Label, lc.Count)
	}
}
