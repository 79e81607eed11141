// Package cli wires the pipeline stages to cobra commands. Each stage is
// one subcommand taking explicit input/output directories, so a corpus
// run is a sequence of commands over the same workspace.
package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dachslabs/qaforge/internal/adapters/driven/config/file"
	ollamaembed "github.com/dachslabs/qaforge/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/dachslabs/qaforge/internal/adapters/driven/embedding/openai"
	"github.com/dachslabs/qaforge/internal/adapters/driven/index/flat"
	ollamallm "github.com/dachslabs/qaforge/internal/adapters/driven/llm/ollama"
	openaillm "github.com/dachslabs/qaforge/internal/adapters/driven/llm/openai"
	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/core/services"
	"github.com/dachslabs/qaforge/internal/logger"
)

var version = "0.1.0"

var (
	cfgPath string
	verbose bool

	cfg   file.Config
	runID string
)

var rootCmd = &cobra.Command{
	Use:   "qaforge",
	Short: "Build grounded instruction-tuning datasets from document chunks",
	Long: `qaforge turns normalised document chunks into semantically annotated
records and a grounded question/answer dataset, using a local flat
vector index for cross-document context.

Stages run as separate commands over a shared workspace:

  prefilter  ->  index  ->  annotate  ->  generate  ->  dataset`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)

		var err error
		cfg, err = file.Load(cfgPath)
		if err != nil {
			return err
		}

		runID = uuid.NewString()
		logger.Debug("run %s", runID)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLLMService builds the configured generative backend.
func newLLMService() (driven.LLMService, error) {
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	switch cfg.LLM.Backend {
	case "", "ollama":
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: cfg.LLM.Endpoint,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		}), nil
	case "openai":
		return openaillm.NewLLMService(openaillm.LLMConfig{
			BaseURL: cfg.LLM.Endpoint,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown llm backend %q", domain.ErrInvalidInput, cfg.LLM.Backend)
	}
}

// newEmbeddingService builds the configured embedding backend.
func newEmbeddingService() (driven.EmbeddingService, error) {
	timeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second
	switch cfg.Embedding.Backend {
	case "", "ollama":
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: cfg.Embedding.Endpoint,
			Model:   cfg.Embedding.Model,
			Timeout: timeout,
		}), nil
	case "openai":
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			BaseURL: cfg.Embedding.Endpoint,
			Model:   cfg.Embedding.Model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding backend %q", domain.ErrInvalidInput, cfg.Embedding.Backend)
	}
}

// newPromptStore opens the prompt template directory, creating it with
// the embedded defaults on first use.
func newPromptStore() (driven.PromptStore, error) {
	return file.NewPromptStore(cfg.Prompts.Dir)
}

// loadTaxonomy loads the label vocabulary from the given YAML file.
func loadTaxonomy(path string) (*domain.Taxonomy, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: taxonomy file required", domain.ErrInvalidInput)
	}
	return file.NewTaxonomyStore(path).Load()
}

// openRetriever loads the index artifacts from a directory. The caller
// owns the retriever and must Close it.
func openRetriever(indexDir string) (*services.Retriever, error) {
	ix, entries, err := flat.Open(flat.Paths{Dir: indexDir, Name: cfg.Index.Name})
	if err != nil {
		return nil, fmt.Errorf("open index in %s: %w", indexDir, err)
	}
	return services.NewRetriever(ix, entries)
}

// grouperConfig maps the config file sections onto the group builder.
func grouperConfig() services.GrouperConfig {
	return services.GrouperConfig{
		MinGroupSize:          cfg.Grouping.MinGroupSize,
		MaxGroupSize:          cfg.Grouping.MaxGroupSize,
		LocalBefore:           cfg.Grouping.MaxLocalNeighborsBefore,
		LocalAfter:            cfg.Grouping.MaxLocalNeighborsAfter,
		TopK:                  cfg.Neighbors.TopK,
		MaxNeighbors:          cfg.Neighbors.MaxNeighbors,
		SimilarityThreshold:   cfg.Neighbors.SimilarityThreshold,
		RequireDomainOverlap:  cfg.Neighbors.RequireDomainOverlap,
		LanguagesAllowed:      cfg.Filters.LanguagesAllowed,
		TrustLevelsAllowed:    cfg.Filters.TrustLevelsAllowed,
		ContentTypesAllowed:   cfg.Filters.ContentTypesAllowed,
		ChunkRolesAllowed:     cfg.Filters.ChunkRolesAllowed,
		ChunkRolesForbidden:   cfg.Filters.ChunkRolesForbidden,
		MinAnchorContentChars: cfg.Filters.MinAnchorContentChars,
	}
}
