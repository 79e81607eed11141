package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLLMUnavailable indicates the generative service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrIndexUnavailable indicates no vector index is loaded.
	// Retrieval-dependent stages degrade to local context only.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrIndexMismatch indicates the entry side-table and the vector index
	// disagree about the vector count. Fatal: a misaligned index must not
	// be consumed or persisted.
	ErrIndexMismatch = errors.New("index entry count mismatch")

	// ErrEmbeddingShape indicates the embedding batch is not a uniform
	// N x D matrix. Fatal before any artifact is written.
	ErrEmbeddingShape = errors.New("embedding output has inconsistent shape")

	// ErrMalformedResponse indicates model output that violates the
	// expected schema. Recovered locally by skipping or falling back.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrMissingVectorID indicates an index entry without an index position
	// under either the current or the legacy field name.
	ErrMissingVectorID = errors.New("index entry missing vector_id")

	// ErrGroupTooSmall indicates a context group fell below the configured
	// minimum after filtering; the anchor is skipped, never padded.
	ErrGroupTooSmall = errors.New("context group below minimum size")
)
