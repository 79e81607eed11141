// Package file provides file-backed configuration adapters: the TOML
// pipeline config, the YAML taxonomy store and the prompt template store.
package file

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the full pipeline configuration, loaded from a single TOML
// file. Zero values are filled from Default, so a partial file is fine.
type Config struct {
	Annotate  AnnotateConfig  `toml:"annotate"`
	Index     IndexConfig     `toml:"index"`
	Neighbors NeighborsConfig `toml:"neighbors"`
	Grouping  GroupingConfig  `toml:"grouping"`
	Filters   FiltersConfig   `toml:"filters"`
	Sampling  SamplingConfig  `toml:"sampling"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Dataset   DatasetConfig   `toml:"dataset"`
	Runtime   RuntimeConfig   `toml:"runtime"`
	Debug     DebugConfig     `toml:"debug"`
	Prompts   PromptsConfig   `toml:"prompts"`
}

// AnnotateConfig controls the semantic annotation stage.
type AnnotateConfig struct {
	// MaxChars caps the focus chunk text passed to the model.
	MaxChars int `toml:"max_chars"`
	// MaxContextChars caps each local neighbour snippet.
	MaxContextChars int `toml:"max_context_chars"`
	// MinContentChars is the structural pre-filter length threshold.
	MinContentChars int `toml:"min_content_chars"`
	// UseLocalContext includes previous/next chunk snippets in the prompt.
	UseLocalContext bool `toml:"use_local_context"`
	// UseRetrievedContext includes retrieved neighbour summaries.
	UseRetrievedContext bool `toml:"use_retrieved_context"`
	// RetrievedTopK is how many neighbours to retrieve per chunk.
	RetrievedTopK int `toml:"retrieved_top_k"`
	// RetrievedMax caps the neighbours that survive filtering.
	RetrievedMax int `toml:"retrieved_max"`
}

// IndexConfig controls the vector index build.
type IndexConfig struct {
	// Normalize applies L2 normalization before indexing, which makes
	// the inner-product metric equivalent to cosine similarity.
	Normalize bool `toml:"normalize"`
	// BatchSize is the embedding request batch size.
	BatchSize int `toml:"batch_size"`
	// Name is the basename of the index artifact files.
	Name string `toml:"name"`
}

// NeighborsConfig controls retrieved-neighbour selection.
type NeighborsConfig struct {
	TopK                int     `toml:"top_k"`
	MaxNeighbors        int     `toml:"max_neighbors"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	// RequireDomainOverlap drops neighbours sharing no domain label
	// with the anchor.
	RequireDomainOverlap bool `toml:"require_domain_overlap"`
}

// GroupingConfig bounds context group sizes.
type GroupingConfig struct {
	MinGroupSize            int `toml:"min_group_size"`
	MaxGroupSize            int `toml:"max_group_size"`
	MaxLocalNeighborsBefore int `toml:"max_local_neighbors_before"`
	MaxLocalNeighborsAfter  int `toml:"max_local_neighbors_after"`
}

// FiltersConfig gates which chunks and candidates flow through the
// pipeline. Empty lists mean "allow all".
type FiltersConfig struct {
	LanguagesAllowed      []string `toml:"languages_allowed"`
	TrustLevelsAllowed    []string `toml:"trust_levels_allowed"`
	ContentTypesAllowed   []string `toml:"content_types_allowed"`
	ChunkRolesAllowed     []string `toml:"chunk_roles_allowed"`
	ChunkRolesForbidden   []string `toml:"chunk_roles_forbidden"`
	MinAnchorContentChars int      `toml:"min_anchor_content_chars"`
}

// SamplingConfig caps candidate generation volume.
type SamplingConfig struct {
	MaxQAPerGroup    int `toml:"max_qa_per_group"`
	MaxQAPerDocument int `toml:"max_qa_per_document"`
	GlobalQALimit    int `toml:"global_qa_limit"`
}

// LLMConfig selects and tunes the generative backend.
type LLMConfig struct {
	// Backend is "ollama" or "openai".
	Backend        string  `toml:"backend"`
	Endpoint       string  `toml:"endpoint"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TopP           float64 `toml:"top_p"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	// MaxRetries bounds backoff retries on transient failures.
	MaxRetries int `toml:"max_retries"`
	// RatePerSecond throttles model calls across all workers.
	// Zero disables throttling.
	RatePerSecond float64 `toml:"rate_per_second"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Backend        string `toml:"backend"`
	Endpoint       string `toml:"endpoint"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DatasetConfig controls the final dataset build.
type DatasetConfig struct {
	Name             string `toml:"name"`
	SchemaVersion    string `toml:"schema_version"`
	// Version is a number or "auto" to scan existing files.
	Version string `toml:"version"`
	// IDStrategy is "sequential", "candidate" or "hash".
	IDStrategy    string `toml:"id_strategy"`
	IDZeroPad     int    `toml:"id_zero_pad"`
	WorkspaceAbbr string `toml:"workspace_abbr"`

	MinQuestionChars int `toml:"min_question_chars"`
	MaxQuestionChars int `toml:"max_question_chars"`
	MinAnswerChars   int `toml:"min_answer_chars"`
	MaxAnswerChars   int `toml:"max_answer_chars"`

	RequireNonemptySources bool `toml:"require_nonempty_sources"`
	DropIfLanguageMismatch bool `toml:"drop_if_language_mismatch"`

	// DedupKeys lists record fields joined for exact-duplicate detection.
	DedupKeys []string `toml:"dedup_keys"`

	WriteChangelog bool   `toml:"write_changelog"`
	WriteRejects   bool   `toml:"write_rejects"`
	CreatedBy      string `toml:"created_by"`
}

// RuntimeConfig holds execution knobs shared by the batch stages.
type RuntimeConfig struct {
	Workers int `toml:"workers"`

	// Resume skips work whose output is already present.
	Resume bool `toml:"resume"`
	DryRun bool `toml:"dry_run"`

	// LogEvery emits a progress line after this many processed chunks.
	// Zero disables progress logging.
	LogEvery int `toml:"log_every"`
}

// DebugConfig bounds a run for quick iteration. Zero means no limit.
type DebugConfig struct {
	LimitFiles  int `toml:"limit_files"`
	LimitChunks int `toml:"limit_chunks"`
}

// PromptsConfig points at the prompt template directory.
type PromptsConfig struct {
	Dir string `toml:"dir"`
}

// Default returns the configuration used when no file or key is given.
func Default() Config {
	return Config{
		Annotate: AnnotateConfig{
			MaxChars:            4000,
			MaxContextChars:     800,
			MinContentChars:     40,
			UseLocalContext:     true,
			UseRetrievedContext: false,
			RetrievedTopK:       8,
			RetrievedMax:        3,
		},
		Index: IndexConfig{
			Normalize: true,
			BatchSize: 32,
			Name:      "contextual",
		},
		Neighbors: NeighborsConfig{
			TopK:                 16,
			MaxNeighbors:         8,
			SimilarityThreshold:  0,
			RequireDomainOverlap: false,
		},
		Grouping: GroupingConfig{
			MinGroupSize:            2,
			MaxGroupSize:            6,
			MaxLocalNeighborsBefore: 1,
			MaxLocalNeighborsAfter:  1,
		},
		Filters: FiltersConfig{
			MinAnchorContentChars: 200,
		},
		Sampling: SamplingConfig{
			MaxQAPerGroup: 3,
		},
		LLM: LLMConfig{
			Backend:        "ollama",
			Endpoint:       "http://localhost:11434",
			Model:          "llama3.1:8b",
			Temperature:    0.2,
			TopP:           0.9,
			MaxTokens:      1024,
			TimeoutSeconds: 120,
			MaxRetries:     3,
			RatePerSecond:  0,
		},
		Embedding: EmbeddingConfig{
			Backend:        "ollama",
			Endpoint:       "http://localhost:11434",
			Model:          "nomic-embed-text",
			TimeoutSeconds: 60,
		},
		Dataset: DatasetConfig{
			Name:                   "qa_dataset",
			SchemaVersion:          "1.0",
			Version:                "auto",
			IDStrategy:             "hash",
			IDZeroPad:              6,
			MinQuestionChars:       12,
			MaxQuestionChars:       600,
			MinAnswerChars:         20,
			MaxAnswerChars:         4000,
			RequireNonemptySources: true,
			DedupKeys:              []string{"instruction", "output"},
			WriteChangelog:         true,
			WriteRejects:           true,
			CreatedBy:              "llm_auto",
		},
		Runtime: RuntimeConfig{
			Workers:  4,
			Resume:   true,
			LogEvery: 50,
		},
	}
}

// Load reads a TOML config file and merges it over the defaults.
// An empty path returns the defaults, with environment overrides applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets deployment environments override endpoints without
// touching the config file. Values typically come from a .env file
// loaded at startup.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if cfg.LLM.Backend == "ollama" {
			cfg.LLM.Endpoint = v
		}
		if cfg.Embedding.Backend == "ollama" {
			cfg.Embedding.Endpoint = v
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		if cfg.LLM.Backend == "openai" {
			cfg.LLM.Endpoint = v
		}
		if cfg.Embedding.Backend == "openai" {
			cfg.Embedding.Endpoint = v
		}
	}
}
