// Package flat implements an exact, file-persisted vector index.
//
// Vectors are held in a single row-major float32 slice and searched by
// brute force. For corpus sizes in the tens of thousands this is fast
// enough and removes any dependency on an external index server; the
// whole artifact is three flat files that can be copied or rebuilt at
// will.
package flat

import (
	"fmt"
	"sort"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index is an exact flat vector index.
type Index struct {
	manifest domain.IndexManifest
	dim      int
	data     []float32
	count    int
}

// New creates an empty index from a manifest. The manifest's dimensions
// field fixes the vector shape for all additions.
func New(manifest domain.IndexManifest) (*Index, error) {
	if manifest.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: manifest dimensions must be positive", domain.ErrInvalidInput)
	}
	if _, err := metricByte(manifest.Metric); err != nil {
		return nil, err
	}
	return &Index{
		manifest: manifest,
		dim:      manifest.Dimensions,
	}, nil
}

// Manifest returns the build configuration of this index.
func (ix *Index) Manifest() domain.IndexManifest {
	m := ix.manifest
	m.Vectors = ix.count
	return m
}

// Count returns the number of indexed vectors.
func (ix *Index) Count() int {
	return ix.count
}

// Add appends a vector. Position in insertion order is the vector ID.
func (ix *Index) Add(vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("%w: got %d dimensions, index has %d",
			domain.ErrEmbeddingShape, len(vec), ix.dim)
	}
	ix.data = append(ix.data, vec...)
	ix.count++
	return nil
}

// Reconstruct returns a copy of the stored vector at the given position.
func (ix *Index) Reconstruct(vectorID int) ([]float32, error) {
	if vectorID < 0 || vectorID >= ix.count {
		return nil, fmt.Errorf("%w: vector id %d out of range [0,%d)",
			domain.ErrNotFound, vectorID, ix.count)
	}
	vec := make([]float32, ix.dim)
	copy(vec, ix.data[vectorID*ix.dim:(vectorID+1)*ix.dim])
	return vec, nil
}

// Search scans all vectors and returns the k best hits for the index
// metric. Scores are the raw metric values; callers must consult the
// manifest direction to compare them.
func (ix *Index) Search(query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrEmbeddingShape, len(query), ix.dim)
	}
	if k <= 0 || ix.count == 0 {
		return nil, nil
	}

	hits := make([]driven.VectorHit, ix.count)
	switch ix.manifest.Metric {
	case domain.MetricInnerProduct:
		for i := 0; i < ix.count; i++ {
			hits[i] = driven.VectorHit{VectorID: i, Score: ix.innerProduct(i, query)}
		}
	case domain.MetricL2:
		for i := 0; i < ix.count; i++ {
			hits[i] = driven.VectorHit{VectorID: i, Score: ix.squaredL2(i, query)}
		}
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, ix.manifest.Metric)
	}

	better := ix.manifest.Metric.Direction()
	sort.SliceStable(hits, func(a, b int) bool {
		return better.Better(hits[a].Score, hits[b].Score)
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Close releases resources.
func (ix *Index) Close() error {
	ix.data = nil
	ix.count = 0
	return nil
}

func (ix *Index) innerProduct(id int, query []float32) float64 {
	row := ix.data[id*ix.dim : (id+1)*ix.dim]
	var sum float64
	for i, v := range row {
		sum += float64(v) * float64(query[i])
	}
	return sum
}

func (ix *Index) squaredL2(id int, query []float32) float64 {
	row := ix.data[id*ix.dim : (id+1)*ix.dim]
	var sum float64
	for i, v := range row {
		d := float64(v) - float64(query[i])
		sum += d * d
	}
	return sum
}
