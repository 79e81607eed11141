package services

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

func TestIsStructural(t *testing.T) {
	f := NewPreFilter(40, testTaxonomy())

	cases := []struct {
		name       string
		content    string
		structural bool
	}{
		{"short heading", "4.3 Convection", true},
		{"page number", "  42  ", true},
		{"separator junk", "--- * --- 17 ---", true},
		{"table caption en", "Table 4.1: " + strings.Repeat("x", 40), false},
		{"bare table label", "Tabelle 4.1", true},
		{"bare figure label", "Fig. 2.", true},
		{"chapter label", "Kapitel 7", true},
		{"real paragraph", strings.Repeat("Heat conduction follows Fourier's law. ", 12), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := domain.Chunk{Content: tc.content}
			assert.Equal(t, tc.structural, f.IsStructural(&c))
		})
	}
}

func TestStructuralAnnotationIsDeterministic(t *testing.T) {
	f := NewPreFilter(40, testTaxonomy())
	c := domain.Chunk{
		ChunkID:  "doc1_c0",
		Content:  "4.3 Convection",
		Language: "de",
		Meta:     domain.ChunkMeta{HasHeading: true},
	}
	f.Annotate(&c)

	require.NotNil(t, c.Semantic)
	assert.Equal(t, domain.LanguageUnknown, c.Language)
	assert.Equal(t, []string{domain.RoleStructural, domain.RoleHeading}, c.Semantic.ChunkRole)
	assert.Equal(t, "low", c.Semantic.TrustLevel)
	assert.Empty(t, c.Semantic.ContentType)
	assert.Empty(t, c.Semantic.Summary)
	assert.Equal(t, domain.ProvenanceRuleStructural, c.Semantic.Provenance.Mode)
	assert.Equal(t, domain.EmptyReasonRule, c.Semantic.Provenance.EmptyReasons["summary"])
	assert.True(t, c.Annotated())
	assert.True(t, c.Semantic.Provenance.AnnotatedAt.IsZero())

	// Two independent runs over the same input must produce
	// byte-identical records, so nothing depends on wall-clock time.
	first := c
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second := domain.Chunk{
		ChunkID:  "doc1_c0",
		Content:  "4.3 Convection",
		Language: "de",
		Meta:     domain.ChunkMeta{HasHeading: true},
	}
	f.Annotate(&second)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestPartitionSplitsFiles(t *testing.T) {
	paragraph := strings.Repeat("The Nusselt number relates convective and conductive heat transfer. ", 8)

	in := newMemChunkStore()
	require.NoError(t, in.Write("doc1.jsonl", []domain.Chunk{
		{DocID: "doc1", ChunkID: "doc1_c0", Content: "4.3 Convection", Meta: domain.ChunkMeta{HasHeading: true}},
		{DocID: "doc1", ChunkID: "doc1_c1", Content: paragraph},
		{DocID: "doc1", ChunkID: "doc1_c2", Content: "Tabelle 4.1", Meta: domain.ChunkMeta{HasTable: true}},
	}))
	require.NoError(t, in.Write("doc2.jsonl", []domain.Chunk{
		{DocID: "doc2", ChunkID: "doc2_c0", Content: paragraph},
	}))

	structural := newMemChunkStore()
	content := newMemChunkStore()

	f := NewPreFilter(40, testTaxonomy())
	res, err := f.Partition(in, structural, content, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 2, res.Structural)
	assert.Equal(t, 2, res.Content)

	s1, err := structural.Read("doc1.jsonl")
	require.NoError(t, err)
	require.Len(t, s1, 2)
	assert.True(t, s1[0].Annotated())
	assert.Contains(t, s1[1].Semantic.ChunkRole, domain.RoleTable)

	c1, err := content.Read("doc1.jsonl")
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.Equal(t, "doc1_c1", c1[0].ChunkID)
	assert.Nil(t, c1[0].Semantic)
}

func TestPartitionHonorsLimits(t *testing.T) {
	paragraph := strings.Repeat("Iterative solvers converge faster with a good preconditioner. ", 8)

	in := newMemChunkStore()
	require.NoError(t, in.Write("a.jsonl", []domain.Chunk{
		{ChunkID: "a0", Content: paragraph},
		{ChunkID: "a1", Content: paragraph},
		{ChunkID: "a2", Content: paragraph},
	}))
	require.NoError(t, in.Write("b.jsonl", []domain.Chunk{
		{ChunkID: "b0", Content: paragraph},
	}))

	f := NewPreFilter(40, testTaxonomy())
	res, err := f.Partition(in, newMemChunkStore(), newMemChunkStore(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 2, res.Chunks)
}
