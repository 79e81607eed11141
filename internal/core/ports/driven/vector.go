package driven

import "github.com/dachslabs/qaforge/internal/core/domain"

// VectorIndex provides exact nearest-neighbour search over a flat,
// read-only vector index built once per corpus snapshot.
type VectorIndex interface {
	// Manifest returns the build configuration, including the metric and
	// score direction consumers must use to interpret Search scores.
	Manifest() domain.IndexManifest

	// Count returns the number of indexed vectors.
	Count() int

	// Reconstruct returns the stored vector at the given index position.
	Reconstruct(vectorID int) ([]float32, error)

	// Search returns the k nearest vectors to the query. Scores are raw
	// metric values, never sign-flipped or rescaled.
	Search(query []float32, k int) ([]VectorHit, error)

	// Close releases resources.
	Close() error
}

// VectorHit is a raw similarity search result.
type VectorHit struct {
	// VectorID is the matched index position.
	VectorID int

	// Score is the raw metric value (inner product or squared L2).
	Score float64
}
