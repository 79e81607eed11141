package domain

// Difficulty tiers for generated question/answer pairs.
const (
	DifficultyBasic        = "basic"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
	DifficultyUnknown      = "unknown"
)

// ValidDifficulty reports whether d is a recognised difficulty tier.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyBasic, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Candidate is a raw question/answer pair generated from a context group,
// before dataset filtering and deduplication.
type Candidate struct {
	// ID is derived from content (anchor + question + answer hash) so
	// re-runs do not collide with earlier outputs.
	ID string `json:"id"`

	// AnchorChunkID and AnchorDocID identify the group anchor.
	AnchorChunkID string `json:"anchor_chunk_id"`
	AnchorDocID   string `json:"anchor_doc_id,omitempty"`

	// SourceChunks lists every chunk the pair was grounded in.
	SourceChunks []string `json:"source_chunks"`

	// DocIDs lists the distinct documents behind SourceChunks.
	DocIDs []string `json:"doc_ids,omitempty"`

	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"`

	// Semantic tags inherited from the anchor chunk.
	Language    string   `json:"language,omitempty"`
	ContentType []string `json:"content_type,omitempty"`
	Domain      []string `json:"domain,omitempty"`
	TrustLevel  string   `json:"trust_level,omitempty"`

	// WorkspaceFile names the annotated input file the anchor came from.
	WorkspaceFile string `json:"workspace_file,omitempty"`
}
