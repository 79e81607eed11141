package services

import (
	"fmt"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/logger"
)

// Neighbor is one retrieved chunk with its raw index score.
type Neighbor struct {
	Entry domain.IndexEntry
	Score float64
}

// Retriever answers chunk-level similarity queries against a loaded vector
// index and its entry side-table. Scores surface exactly as the index
// reports them; score comparison always goes through Better, which reads
// the manifest direction.
type Retriever struct {
	index   driven.VectorIndex
	entries []domain.IndexEntry
	byChunk map[string]int
}

// NewRetriever wraps an index and its entries. The entry count must match
// the index size exactly; anything else means the artifacts are torn and
// must not be consumed.
func NewRetriever(index driven.VectorIndex, entries []domain.IndexEntry) (*Retriever, error) {
	if len(entries) != index.Count() {
		return nil, fmt.Errorf("%w: %d entries for %d vectors",
			domain.ErrIndexMismatch, len(entries), index.Count())
	}

	byChunk := make(map[string]int, len(entries))
	for i := range entries {
		id := entries[i].ChunkID
		if prev, dup := byChunk[id]; dup {
			logger.Warn("duplicate chunk id %s in index entries (vector %d shadows %d)",
				id, entries[i].VectorID, prev)
		}
		byChunk[id] = entries[i].VectorID
	}

	return &Retriever{
		index:   index,
		entries: entries,
		byChunk: byChunk,
	}, nil
}

// Manifest returns the index build configuration.
func (r *Retriever) Manifest() domain.IndexManifest {
	return r.index.Manifest()
}

// Better reports whether score a beats score b under the index metric.
func (r *Retriever) Better(a, b float64) bool {
	return r.index.Manifest().Direction.Better(a, b)
}

// VectorIDFor resolves a chunk ID to its index position.
func (r *Retriever) VectorIDFor(chunkID string) (int, bool) {
	id, ok := r.byChunk[chunkID]
	return id, ok
}

// Entry returns the side-table entry at an index position.
func (r *Retriever) Entry(vectorID int) (domain.IndexEntry, error) {
	if vectorID < 0 || vectorID >= len(r.entries) {
		return domain.IndexEntry{}, fmt.Errorf("%w: vector id %d", domain.ErrNotFound, vectorID)
	}
	return r.entries[vectorID], nil
}

// Reconstruct returns the stored vector for a chunk.
func (r *Retriever) Reconstruct(chunkID string) ([]float32, error) {
	vectorID, ok := r.byChunk[chunkID]
	if !ok {
		return nil, fmt.Errorf("%w: chunk %s not in index", domain.ErrNotFound, chunkID)
	}
	return r.index.Reconstruct(vectorID)
}

// Neighbors returns up to k nearest chunks for the given anchor chunk,
// with raw scores. The anchor itself is removed unless includeSelf is
// set. An anchor absent from the index yields ErrNotFound.
func (r *Retriever) Neighbors(chunkID string, k int, includeSelf bool) ([]Neighbor, error) {
	vectorID, ok := r.byChunk[chunkID]
	if !ok {
		return nil, fmt.Errorf("%w: chunk %s not in index", domain.ErrNotFound, chunkID)
	}
	query, err := r.index.Reconstruct(vectorID)
	if err != nil {
		return nil, err
	}

	// Over-fetch by one so dropping the anchor still fills k slots.
	hits, err := r.index.Search(query, k+1)
	if err != nil {
		return nil, fmt.Errorf("search neighbors of %s: %w", chunkID, err)
	}

	neighbors := make([]Neighbor, 0, k)
	for _, hit := range hits {
		if len(neighbors) == k {
			break
		}
		if !includeSelf && hit.VectorID == vectorID {
			continue
		}
		entry, err := r.Entry(hit.VectorID)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, Neighbor{Entry: entry, Score: hit.Score})
	}
	return neighbors, nil
}

// Close releases the underlying index.
func (r *Retriever) Close() error {
	return r.index.Close()
}
