package cli

import (
	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/config/file"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Show the prompt template directory",
	Long: `Prints the directory holding the prompt template files. The files
are created with embedded defaults on first use and can be edited to
tune annotation and generation without rebuilding.`,
	RunE: runPrompts,
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}

func runPrompts(cmd *cobra.Command, _ []string) error {
	store, err := file.NewPromptStore(cfg.Prompts.Dir)
	if err != nil {
		return err
	}
	// Loading forces the default files into existence.
	if _, err := store.Load(driven.PromptAnnotateSystem); err != nil {
		return err
	}
	cmd.Println(store.Dir())
	return nil
}
