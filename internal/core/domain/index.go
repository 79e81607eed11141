package domain

import (
	"encoding/json"
	"time"
)

// Metric identifies the similarity metric of a vector index.
type Metric string

const (
	// MetricInnerProduct scores by dot product; with unit-normalised
	// vectors this is cosine similarity. Higher is better.
	MetricInnerProduct Metric = "inner_product"

	// MetricL2 scores by squared Euclidean distance. Lower is better.
	MetricL2 Metric = "l2"
)

// Direction is the score-interpretation strategy carried alongside every
// index. Consumers must consult it instead of hardcoding a sort order.
type Direction string

const (
	DirectionMaximize Direction = "maximize"
	DirectionMinimize Direction = "minimize"
)

// Direction returns the score direction implied by the metric.
func (m Metric) Direction() Direction {
	if m == MetricL2 {
		return DirectionMinimize
	}
	return DirectionMaximize
}

// Better reports whether score a beats score b under this direction.
func (d Direction) Better(a, b float64) bool {
	if d == DirectionMinimize {
		return a < b
	}
	return a > b
}

// IndexManifest describes a built vector index. It is the single source of
// truth for score interpretation: any consumer of retrieval scores must
// read it to learn whether higher or lower is better.
type IndexManifest struct {
	// Metric is the similarity metric the index was built with.
	Metric Metric `toml:"metric" json:"metric"`

	// Direction is the score-interpretation strategy for Metric.
	Direction Direction `toml:"direction" json:"direction"`

	// Normalized is true when embeddings were unit-length normalised
	// before indexing.
	Normalized bool `toml:"normalized" json:"normalized"`

	// Dimensions is the embedding dimensionality.
	Dimensions int `toml:"dimensions" json:"dimensions"`

	// Vectors is the number of indexed vectors.
	Vectors int `toml:"vectors" json:"vectors"`

	// Model names the embedding model used for the build.
	Model string `toml:"model" json:"model"`

	// BuiltAt is the build timestamp.
	BuiltAt time.Time `toml:"built_at" json:"built_at"`
}

// IndexEntry maps an index position back to chunk identity and carries a
// copy of the chunk's semantic block so retrieval consumers can filter
// without reloading the corpus.
type IndexEntry struct {
	// VectorID is the position in the flat index.
	VectorID int `json:"vector_id"`

	// ChunkID and DocID identify the indexed chunk.
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`

	// SourcePath locates the chunk's document file.
	SourcePath string `json:"source_path,omitempty"`

	// Language is the chunk's language tag at index-build time.
	Language string `json:"language,omitempty"`

	// Semantic is a read-only copy of the chunk's annotation.
	Semantic *Semantic `json:"semantic,omitempty"`
}

// indexEntryWire mirrors IndexEntry for decoding. Older builds wrote the
// index position as "faiss_id"; both field names are accepted.
type indexEntryWire struct {
	VectorID      *int      `json:"vector_id"`
	LegacyFaissID *int      `json:"faiss_id"`
	ChunkID       string    `json:"chunk_id"`
	DocID         string    `json:"doc_id"`
	SourcePath    string    `json:"source_path,omitempty"`
	Language      string    `json:"language,omitempty"`
	Semantic      *Semantic `json:"semantic,omitempty"`
}

// UnmarshalJSON decodes an entry, accepting the legacy "faiss_id" field
// name for the index position.
func (e *IndexEntry) UnmarshalJSON(data []byte) error {
	var w indexEntryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.VectorID != nil:
		e.VectorID = *w.VectorID
	case w.LegacyFaissID != nil:
		e.VectorID = *w.LegacyFaissID
	default:
		return ErrMissingVectorID
	}
	e.ChunkID = w.ChunkID
	e.DocID = w.DocID
	e.SourcePath = w.SourcePath
	e.Language = w.Language
	e.Semantic = w.Semantic
	return nil
}
