package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

func generatorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxQAPerGroup:        3,
		ContextCharsPerChunk: 1500,
		Workers:              1,
		MaxRetries:           0,
	}
}

func generatorCorpus(t *testing.T) *memChunkStore {
	t.Helper()
	store := newMemChunkStore()
	require.NoError(t, store.Write("doc1.jsonl", []domain.Chunk{
		contentChunk("doc1", "c0", &domain.Semantic{
			TrustLevel:  "high",
			ContentType: []string{"textbook"},
			Domain:      []string{"thermodynamics"},
			Summary:     "Fourier's law of heat conduction.",
		}),
		contentChunk("doc1", "c1", &domain.Semantic{
			TrustLevel: "high",
			Domain:     []string{"thermodynamics"},
		}),
	}))
	return store
}

const qaReply = `[
	{"question": "What does Fourier's law relate?", "answer": "Heat flux and the temperature gradient.", "difficulty": "basic"},
	{"question": "  ", "answer": "dropped, empty question", "difficulty": "basic"},
	{"question": "Which property scales conduction?", "answer": "The thermal conductivity.", "difficulty": "expert"}
]`

func runGenerator(t *testing.T, llm *scriptedLLM, cfg GeneratorConfig, chunks *memChunkStore) (*memCandidateStore, GenerateResult) {
	t.Helper()
	candidates := newMemCandidateStore()
	gen := NewGenerator(llm, testPrompts(), NewGrouper(nil, grouperConfig()), cfg)
	res, err := gen.Run(context.Background(), chunks, candidates)
	require.NoError(t, err)
	return candidates, res
}

func TestGeneratorProducesCandidates(t *testing.T) {
	llm := &scriptedLLM{replies: []string{qaReply, "[]"}}
	candidates, res := runGenerator(t, llm, generatorConfig(), generatorCorpus(t))

	assert.Equal(t, 2, res.Anchors)
	assert.Equal(t, 2, res.Groups)
	assert.Equal(t, 2, res.Candidates)
	assert.Zero(t, res.Failures)

	got, err := candidates.Read("doc1.jsonl")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "c0", first.AnchorChunkID)
	assert.Equal(t, "doc1", first.AnchorDocID)
	assert.Equal(t, "What does Fourier's law relate?", first.Question)
	assert.Equal(t, domain.DifficultyBasic, first.Difficulty)
	assert.Equal(t, []string{"c0", "c1"}, first.SourceChunks)
	assert.Equal(t, []string{"doc1"}, first.DocIDs)
	assert.Equal(t, "textbook", first.ContentType[0])
	assert.Equal(t, "high", first.TrustLevel)
	assert.Equal(t, "doc1.jsonl", first.WorkspaceFile)
	assert.True(t, strings.HasPrefix(first.ID, "qa_"))

	// Unrecognised difficulty tiers degrade to unknown.
	assert.Equal(t, domain.DifficultyUnknown, got[1].Difficulty)
}

func TestGeneratorCandidateIDIsStable(t *testing.T) {
	a := candidateID("c0", "q", "a")
	b := candidateID("c0", "q", "a")
	c := candidateID("c0", "q", "different")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("qa_")+16)
}

func TestGeneratorPromptCarriesContextBlocks(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"[]", "[]"}}
	runGenerator(t, llm, generatorConfig(), generatorCorpus(t))

	assert.Contains(t, llm.lastUser, "pairs=3 lang=en")
	assert.Contains(t, llm.lastUser, "[c1 | anchor]")
	assert.Contains(t, llm.lastUser, "[c0 | local_before]")
	// Summaries are preferred over raw content.
	assert.Contains(t, llm.lastUser, "Fourier's law of heat conduction.")
}

func TestGeneratorSkipsIneligibleAnchors(t *testing.T) {
	store := newMemChunkStore()
	require.NoError(t, store.Write("doc1.jsonl", []domain.Chunk{
		{DocID: "doc1", ChunkID: "c0", Content: "unannotated"},
		contentChunk("doc1", "c1", &domain.Semantic{TrustLevel: "high"}),
		contentChunk("doc1", "c2", &domain.Semantic{TrustLevel: "high"}),
	}))

	llm := &scriptedLLM{replies: []string{"[]", "[]"}}
	_, res := runGenerator(t, llm, generatorConfig(), store)

	assert.Equal(t, 1, res.Ineligible)
	assert.Equal(t, 2, res.Anchors)
}

func TestGeneratorResumeSkipsDoneAnchors(t *testing.T) {
	store := generatorCorpus(t)

	candidates := newMemCandidateStore()
	candidates.data["doc1.jsonl"] = []domain.Candidate{
		{ID: "qa_existing", AnchorChunkID: "c0", Question: "q", Answer: "a"},
	}

	cfg := generatorConfig()
	cfg.Resume = true
	llm := &scriptedLLM{replies: []string{qaReply}}
	gen := NewGenerator(llm, testPrompts(), NewGrouper(nil, grouperConfig()), cfg)
	res, err := gen.Run(context.Background(), store, candidates)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Resumed)
	assert.Equal(t, 1, res.Groups)
	assert.Equal(t, 1, llm.calls)

	got, err := candidates.Read("doc1.jsonl")
	require.NoError(t, err)
	// The pre-existing candidate survives, new ones append after it.
	assert.Equal(t, "qa_existing", got[0].ID)
	assert.Equal(t, "c1", got[1].AnchorChunkID)
}

func TestGeneratorDocumentCap(t *testing.T) {
	cfg := generatorConfig()
	cfg.MaxQAPerDocument = 1

	llm := &scriptedLLM{replies: []string{qaReply, qaReply}}
	candidates, res := runGenerator(t, llm, cfg, generatorCorpus(t))

	assert.Equal(t, 1, res.Candidates)
	got, err := candidates.Read("doc1.jsonl")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGeneratorGlobalLimit(t *testing.T) {
	cfg := generatorConfig()
	cfg.GlobalQALimit = 1

	llm := &scriptedLLM{replies: []string{qaReply, qaReply}}
	candidates, res := runGenerator(t, llm, cfg, generatorCorpus(t))

	assert.Equal(t, 1, res.Candidates)
	got, err := candidates.Read("doc1.jsonl")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGeneratorSurvivesModelFailure(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"no json here", qaReply}}
	candidates, res := runGenerator(t, llm, generatorConfig(), generatorCorpus(t))

	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, 2, res.Candidates)

	got, err := candidates.Read("doc1.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "c1", got[0].AnchorChunkID)
}

func TestGeneratorEmptyArrayIsNotAFailure(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"[]", "[]"}}
	_, res := runGenerator(t, llm, generatorConfig(), generatorCorpus(t))

	assert.Zero(t, res.Failures)
	assert.Zero(t, res.Candidates)
	assert.Equal(t, 2, res.Groups)
}
