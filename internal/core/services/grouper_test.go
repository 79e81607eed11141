package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

func grouperConfig() GrouperConfig {
	return GrouperConfig{
		MinGroupSize:          2,
		MaxGroupSize:          6,
		LocalBefore:           1,
		LocalAfter:            1,
		TopK:                  8,
		MaxNeighbors:          4,
		MinAnchorContentChars: 40,
	}
}

func contentChunk(docID, chunkID string, sem *domain.Semantic) domain.Chunk {
	c := annotatedChunk(docID, chunkID,
		strings.Repeat("Enough prose about heat transfer to pass the anchor length gate. ", 2), sem)
	return c
}

func TestEligibleAnchorReasons(t *testing.T) {
	g := NewGrouper(nil, GrouperConfig{
		MinGroupSize:          2,
		MaxGroupSize:          6,
		MinAnchorContentChars: 40,
		LanguagesAllowed:      []string{"en"},
		TrustLevelsAllowed:    []string{"high", "medium"},
		ChunkRolesForbidden:   []string{"example"},
	})

	base := func() domain.Chunk {
		return contentChunk("doc1", "c0", &domain.Semantic{
			TrustLevel: "high",
			ChunkRole:  []string{"definition"},
		})
	}

	ok, reason := g.EligibleAnchor(&domain.Chunk{ChunkID: "x", Content: "text"})
	assert.False(t, ok)
	assert.Equal(t, "not_annotated", reason)

	c := base()
	c.Semantic.ChunkRole = []string{domain.RoleStructural}
	_, reason = g.EligibleAnchor(&c)
	assert.Equal(t, "structural", reason)

	c = base()
	c.Content = "short"
	_, reason = g.EligibleAnchor(&c)
	assert.Equal(t, "content_too_short", reason)

	c = base()
	c.Language = "de"
	_, reason = g.EligibleAnchor(&c)
	assert.Equal(t, "language_not_allowed", reason)

	c = base()
	c.Semantic.TrustLevel = "low"
	_, reason = g.EligibleAnchor(&c)
	assert.Equal(t, "trust_level_not_allowed", reason)

	c = base()
	c.Semantic.ChunkRole = []string{"definition", "example"}
	_, reason = g.EligibleAnchor(&c)
	assert.Equal(t, "chunk_role_forbidden", reason)

	c = base()
	ok, reason = g.EligibleAnchor(&c)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestBuildGroupLocalWindow(t *testing.T) {
	fileChunks := []domain.Chunk{
		contentChunk("doc1", "c0", &domain.Semantic{TrustLevel: "high"}),
		contentChunk("doc1", "c1", &domain.Semantic{TrustLevel: "high"}),
		contentChunk("doc1", "c2", &domain.Semantic{TrustLevel: "high"}),
	}

	g := NewGrouper(nil, grouperConfig())
	group, err := g.Build(1, fileChunks, map[string]*domain.Chunk{})
	require.NoError(t, err)

	require.Len(t, group.Members, 3)
	assert.Equal(t, "c1", group.AnchorChunkID)
	assert.Equal(t, domain.OriginAnchor, group.Members[0].Origin)
	assert.Equal(t, "c0", group.Members[1].Chunk.ChunkID)
	assert.Equal(t, domain.OriginLocalBefore, group.Members[1].Origin)
	assert.Equal(t, "c2", group.Members[2].Chunk.ChunkID)
	assert.Equal(t, domain.OriginLocalAfter, group.Members[2].Origin)
	assert.Equal(t, []string{"c1", "c0", "c2"}, group.ChunkIDs())
	assert.Equal(t, []string{"doc1"}, group.DocIDs())
}

func TestBuildGroupTooSmall(t *testing.T) {
	fileChunks := []domain.Chunk{
		contentChunk("doc1", "c0", &domain.Semantic{TrustLevel: "high"}),
	}

	g := NewGrouper(nil, grouperConfig())
	_, err := g.Build(0, fileChunks, map[string]*domain.Chunk{})
	assert.ErrorIs(t, err, domain.ErrGroupTooSmall)
}

func TestBuildGroupWithRetrievedMembers(t *testing.T) {
	anchor := contentChunk("doc1", "a", &domain.Semantic{
		TrustLevel: "high",
		Domain:     []string{"thermodynamics"},
	})
	near := contentChunk("doc2", "n1", &domain.Semantic{
		TrustLevel: "high",
		Domain:     []string{"thermodynamics"},
	})
	offTopic := contentChunk("doc3", "n2", &domain.Semantic{
		TrustLevel: "high",
		Domain:     []string{"hpc"},
	})
	structural := contentChunk("doc4", "n3", &domain.Semantic{
		TrustLevel: "high",
		ChunkRole:  []string{domain.RoleStructural},
	})

	indexed := []domain.Chunk{anchor, near, offTopic, structural}
	retriever := buildRetriever(t, domain.MetricInnerProduct, indexed, [][]float32{
		{1, 0},
		{0.95, 0.05},
		{0.9, 0.1},
		{0.85, 0.15},
	})
	corpus := map[string]*domain.Chunk{
		"a": &anchor, "n1": &near, "n2": &offTopic, "n3": &structural,
	}

	cfg := grouperConfig()
	cfg.RequireDomainOverlap = true
	g := NewGrouper(retriever, cfg)

	group, err := g.Build(0, []domain.Chunk{anchor}, corpus)
	require.NoError(t, err)

	require.Len(t, group.Members, 2)
	assert.Equal(t, "n1", group.Members[1].Chunk.ChunkID)
	assert.Equal(t, domain.OriginRetrieved, group.Members[1].Origin)
	assert.Greater(t, group.Members[1].Score, 0.0)
}

func TestBuildGroupFiltersNeighborLanguage(t *testing.T) {
	anchor := contentChunk("doc1", "a", &domain.Semantic{TrustLevel: "high"})
	german := contentChunk("doc2", "n1", &domain.Semantic{TrustLevel: "high"})
	german.Language = "de"
	english := contentChunk("doc3", "n2", &domain.Semantic{TrustLevel: "high"})

	// The German neighbour scores higher, but only English is allowed.
	indexed := []domain.Chunk{anchor, german, english}
	retriever := buildRetriever(t, domain.MetricInnerProduct, indexed, [][]float32{
		{1, 0},
		{0.95, 0.05},
		{0.8, 0.2},
	})
	corpus := map[string]*domain.Chunk{"a": &anchor, "n1": &german, "n2": &english}

	cfg := grouperConfig()
	cfg.LanguagesAllowed = []string{"en"}
	g := NewGrouper(retriever, cfg)

	group, err := g.Build(0, []domain.Chunk{anchor}, corpus)
	require.NoError(t, err)

	require.Len(t, group.Members, 2)
	assert.Equal(t, "n2", group.Members[1].Chunk.ChunkID)
	assert.Equal(t, domain.OriginRetrieved, group.Members[1].Origin)
	assert.NotContains(t, group.ChunkIDs(), "n1")
}

func TestBuildGroupSimilarityThreshold(t *testing.T) {
	anchor := contentChunk("doc1", "a", &domain.Semantic{TrustLevel: "high"})
	near := contentChunk("doc2", "n1", &domain.Semantic{TrustLevel: "high"})
	far := contentChunk("doc3", "n2", &domain.Semantic{TrustLevel: "high"})

	indexed := []domain.Chunk{anchor, near, far}
	retriever := buildRetriever(t, domain.MetricInnerProduct, indexed, [][]float32{
		{1, 0},
		{0.9, 0.1},
		{0.1, 0.9},
	})
	corpus := map[string]*domain.Chunk{"a": &anchor, "n1": &near, "n2": &far}

	cfg := grouperConfig()
	cfg.SimilarityThreshold = 0.5
	g := NewGrouper(retriever, cfg)

	group, err := g.Build(0, []domain.Chunk{anchor}, corpus)
	require.NoError(t, err)

	require.Len(t, group.Members, 2)
	assert.Equal(t, "n1", group.Members[1].Chunk.ChunkID)
}

func TestBuildGroupCapsAndDeduplicates(t *testing.T) {
	fileChunks := []domain.Chunk{
		contentChunk("doc1", "c0", &domain.Semantic{TrustLevel: "high"}),
		contentChunk("doc1", "c1", &domain.Semantic{TrustLevel: "high"}),
		contentChunk("doc1", "c2", &domain.Semantic{TrustLevel: "high"}),
	}

	// A retriever over the same chunks returns c0 and c2 as neighbours of
	// c1; both already entered through the local window.
	retriever := buildRetriever(t, domain.MetricInnerProduct, fileChunks, [][]float32{
		{1, 0},
		{0.95, 0.05},
		{0.9, 0.1},
	})
	corpus := map[string]*domain.Chunk{
		"c0": &fileChunks[0], "c1": &fileChunks[1], "c2": &fileChunks[2],
	}

	cfg := grouperConfig()
	cfg.MaxGroupSize = 3
	g := NewGrouper(retriever, cfg)

	group, err := g.Build(1, fileChunks, corpus)
	require.NoError(t, err)

	assert.Len(t, group.Members, 3)
	assert.Equal(t, []string{"c1", "c0", "c2"}, group.ChunkIDs())
}
