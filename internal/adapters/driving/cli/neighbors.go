package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors [chunk-id]",
	Short: "Show the nearest index neighbours of a chunk",
	Args:  cobra.ExactArgs(1),
	RunE:  runNeighbors,
}

var (
	neighborsIndexDir    string
	neighborsTopK        int
	neighborsIncludeSelf bool
)

func init() {
	neighborsCmd.Flags().StringVar(&neighborsIndexDir, "index-dir", "", "Index directory")
	neighborsCmd.Flags().IntVarP(&neighborsTopK, "top-k", "k", 10, "Number of neighbours to show")
	neighborsCmd.Flags().BoolVar(&neighborsIncludeSelf, "include-self", false, "Keep the anchor in the result list")
	_ = neighborsCmd.MarkFlagRequired("index-dir")

	rootCmd.AddCommand(neighborsCmd)
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	retriever, err := openRetriever(neighborsIndexDir)
	if err != nil {
		return err
	}
	defer retriever.Close()

	manifest := retriever.Manifest()
	neighbors, err := retriever.Neighbors(args[0], neighborsTopK, neighborsIncludeSelf)
	if err != nil {
		return fmt.Errorf("neighbor lookup failed: %w", err)
	}

	cmd.Printf("Index: %d vectors, metric %s (%s), model %s\n",
		manifest.Vectors, manifest.Metric, manifest.Direction, manifest.Model)
	if len(neighbors) == 0 {
		cmd.Println("No neighbours found.")
		return nil
	}

	for i, nb := range neighbors {
		summary := ""
		if nb.Entry.Semantic != nil && nb.Entry.Semantic.Summary != "" {
			summary = "  " + nb.Entry.Semantic.Summary
		}
		cmd.Printf("%2d. %-30s  doc=%-20s  score=%.4f%s\n",
			i+1, nb.Entry.ChunkID, nb.Entry.DocID, nb.Score, summary)
	}
	return nil
}
