package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

func statsCorpus(t *testing.T) *memChunkStore {
	t.Helper()
	store := newMemChunkStore()
	require.NoError(t, store.Write("doc1.jsonl", []domain.Chunk{
		annotatedChunk("doc1", "c0", "content", &domain.Semantic{
			ContentType: []string{"textbook"},
			Domain:      []string{"thermodynamics"},
			ChunkRole:   []string{"definition"},
			TrustLevel:  "high",
			Summary:     "a summary",
			KeyFacts:    []string{"fact"},
		}),
		annotatedChunk("doc1", "c1", "content", &domain.Semantic{
			ContentType: []string{"textbook"},
			TrustLevel:  "medium",
			ChunkRole:   []string{domain.RoleStructural},
		}),
		{
			DocID: "doc1", ChunkID: "c2", Language: "de", Content: "4.3 Konvektion",
			Semantic: &domain.Semantic{
				ChunkRole:  []string{domain.RoleStructural},
				TrustLevel: "low",
				Provenance: domain.Provenance{Mode: domain.ProvenanceRuleStructural},
			},
		},
		{DocID: "doc1", ChunkID: "c3", Content: "not annotated yet"},
	}))
	return store
}

func TestStatsChunkReport(t *testing.T) {
	report, err := NewStatsBuilder(10).Run(statsCorpus(t), nil)
	require.NoError(t, err)

	cs := report.Chunks
	assert.Equal(t, 1, cs.Files)
	assert.Equal(t, 4, cs.Chunks)
	assert.Equal(t, 2, cs.Annotated)
	assert.Equal(t, 1, cs.Structural)
	assert.Equal(t, 1, cs.Pending)

	assert.Equal(t, []LabelCount{{Label: "en", Count: 2}}, cs.Languages)
	assert.Equal(t, []LabelCount{{Label: "textbook", Count: 2}}, cs.ContentTypes)

	// c1 carries a model annotation but a structural role.
	assert.Equal(t, 1, cs.StructuralLeakage)
	assert.Equal(t, 1, cs.EmptySummary)
	assert.Equal(t, 1, cs.EmptyKeyFacts)
	assert.Equal(t, 1, cs.EmptyDomains)
}

func TestStatsCandidateReport(t *testing.T) {
	candidates := newMemCandidateStore()
	candidates.data["doc1.jsonl"] = []domain.Candidate{
		{AnchorChunkID: "c0", Difficulty: "basic", Language: "en"},
		{AnchorChunkID: "c0", Difficulty: "advanced", Language: "en"},
		{AnchorChunkID: "c0", Difficulty: "basic", Language: "en"},
		{AnchorChunkID: "c1", Difficulty: "basic", Language: "de"},
	}

	report, err := NewStatsBuilder(10).Run(statsCorpus(t), candidates)
	require.NoError(t, err)

	qs := report.Candidates
	assert.Equal(t, 4, qs.Candidates)
	assert.Equal(t, 2, qs.Anchors)
	assert.Equal(t, 1, qs.MinPerAnchor)
	assert.Equal(t, 3, qs.MaxPerAnchor)
	assert.InDelta(t, 2.0, qs.AvgPerAnchor, 1e-9)
	assert.Greater(t, qs.AnchorGini, 0.0)
	assert.Equal(t, []LabelCount{{Label: "basic", Count: 3}, {Label: "advanced", Count: 1}}, qs.Difficulties)
}

func TestTopCountsOrderAndTruncation(t *testing.T) {
	counts := map[string]int{"b": 3, "a": 3, "c": 1, "d": 9}
	top := topCounts(counts, 3)
	assert.Equal(t, []LabelCount{
		{Label: "d", Count: 9},
		{Label: "a", Count: 3},
		{Label: "b", Count: 3},
	}, top)
}

func TestGiniCoefficient(t *testing.T) {
	assert.InDelta(t, 0.0, gini([]int{5, 5, 5, 5}), 1e-9)
	assert.InDelta(t, 0.75, gini([]int{0, 0, 0, 20}), 1e-9)
	assert.Zero(t, gini(nil))
}
