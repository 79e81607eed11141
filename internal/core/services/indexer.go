package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/logger"
)

// IndexBuilder embeds content-bearing chunks and prepares the artifacts
// of a flat vector index. Builds are wholesale: a new build replaces the
// previous artifacts, there is no incremental update.
type IndexBuilder struct {
	embedder  driven.EmbeddingService
	normalize bool
	batchSize int
}

// NewIndexBuilder creates an index builder. When normalize is true the
// vectors are unit-length normalised and the index metric is inner
// product (cosine); otherwise squared L2 distance is used.
func NewIndexBuilder(embedder driven.EmbeddingService, normalize bool, batchSize int) *IndexBuilder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &IndexBuilder{
		embedder:  embedder,
		normalize: normalize,
		batchSize: batchSize,
	}
}

// IndexBuild holds a verified build ready for persistence. Vectors[i]
// belongs to Entries[i]; Entries[i].VectorID == i.
type IndexBuild struct {
	Vectors  [][]float32
	Entries  []domain.IndexEntry
	Manifest domain.IndexManifest
}

// Build loads all annotated chunk files, embeds every content-bearing
// chunk and verifies the result. Any count or shape violation aborts
// before anything can be persisted. Limits of zero mean unlimited.
func (b *IndexBuilder) Build(ctx context.Context, store driven.ChunkStore, limitFiles, limitChunks int) (*IndexBuild, error) {
	files, err := store.Files()
	if err != nil {
		return nil, fmt.Errorf("list chunk files: %w", err)
	}
	if limitFiles > 0 && len(files) > limitFiles {
		files = files[:limitFiles]
	}

	var texts []string
	var entries []domain.IndexEntry
	seen := make(map[string]int)
	var duplicates []string

	for _, file := range files {
		chunks, err := store.Read(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for i := range chunks {
			if limitChunks > 0 && len(entries) >= limitChunks {
				break
			}
			c := &chunks[i]
			if c.Semantic != nil && c.Semantic.HasRole(domain.RoleStructural) {
				continue
			}
			if strings.TrimSpace(c.Content) == "" {
				continue
			}
			if _, dup := seen[c.ChunkID]; dup {
				duplicates = append(duplicates, c.ChunkID)
			}
			seen[c.ChunkID] = len(entries)

			texts = append(texts, embedText(c))
			entries = append(entries, domain.IndexEntry{
				VectorID:   len(entries),
				ChunkID:    c.ChunkID,
				DocID:      c.DocID,
				SourcePath: c.SourcePath,
				Language:   c.Language,
				Semantic:   c.Semantic,
			})
		}
	}

	if len(duplicates) > 0 {
		sample := duplicates
		if len(sample) > 5 {
			sample = sample[:5]
		}
		logger.Warn("%d duplicate chunk ids in corpus (e.g. %s); later occurrences shadow earlier ones",
			len(duplicates), strings.Join(sample, ", "))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no content-bearing chunks to index", domain.ErrInvalidInput)
	}

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	// Count and shape verification: nothing is persisted unless the
	// matrix is exactly len(entries) x dim.
	if len(vectors) != len(entries) {
		return nil, fmt.Errorf("%w: %d vectors for %d entries",
			domain.ErrIndexMismatch, len(vectors), len(entries))
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				domain.ErrEmbeddingShape, i, len(v), dim)
		}
	}

	metric := domain.MetricL2
	if b.normalize {
		for _, v := range vectors {
			l2Normalize(v)
		}
		metric = domain.MetricInnerProduct
	}

	return &IndexBuild{
		Vectors: vectors,
		Entries: entries,
		Manifest: domain.IndexManifest{
			Metric:     metric,
			Direction:  metric.Direction(),
			Normalized: b.normalize,
			Dimensions: dim,
			Vectors:    len(vectors),
			Model:      b.embedder.ModelName(),
			BuiltAt:    time.Now().UTC(),
		},
	}, nil
}

// embedAll batches the embedding calls.
func (b *IndexBuilder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := b.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d..%d: %w", start, end, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("%w: batch returned %d vectors for %d texts",
				domain.ErrEmbeddingShape, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
		logger.Debug("embedded %d/%d chunks", len(vectors), len(texts))
	}
	return vectors, nil
}

// embedText builds the text embedded for a chunk: the document title
// provides topical context for short chunks.
func embedText(c *domain.Chunk) string {
	if c.Title == "" {
		return c.Content
	}
	return c.Title + "\n\n" + c.Content
}

// l2Normalize scales a vector to unit length in place.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
