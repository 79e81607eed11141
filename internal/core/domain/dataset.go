package domain

import "time"

// DatasetRecord is the final instruction-tuning unit. Once written into a
// released dataset version it is immutable; new curation produces a new
// version, never an in-place edit.
type DatasetRecord struct {
	// ID is stable within the dataset version (strategy-dependent).
	ID string `json:"id"`

	// Instruction, Input and Output form the tuning triple.
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`

	// Semantic tags inherited from the candidate.
	Language    string   `json:"language"`
	ContentType []string `json:"content_type"`
	Domain      []string `json:"domain"`
	TrustLevel  string   `json:"trust_level"`

	// SourceIDs lists grounding references as "chunk:<chunk_id>".
	SourceIDs []string `json:"source_ids"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	// Version is the dataset version this record was released in.
	Version string `json:"version"`

	// Links back to the generating candidate for auditability.
	CandidateID   string `json:"candidate_id,omitempty"`
	AnchorChunkID string `json:"anchor_chunk_id,omitempty"`
	AnchorDocID   string `json:"anchor_doc_id,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`

	Topic     string `json:"topic,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

// Reject records a dropped candidate with enough context to reproduce and
// fix the drop.
type Reject struct {
	Reason        string `json:"reason"`
	File          string `json:"file,omitempty"`
	Line          int    `json:"line,omitempty"`
	CandidateID   string `json:"candidate_id,omitempty"`
	AnchorChunkID string `json:"anchor_chunk_id,omitempty"`
}
