package services

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/adapters/driven/index/flat"
	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

// memChunkStore is an in-memory ChunkStore for service tests.
type memChunkStore struct {
	data map[string][]domain.Chunk
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{data: map[string][]domain.Chunk{}}
}

func (s *memChunkStore) Files() ([]string, error) {
	files := make([]string, 0, len(s.data))
	for f := range s.data {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (s *memChunkStore) Read(file string) ([]domain.Chunk, error) {
	chunks, ok := s.data[file]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", file, fs.ErrNotExist)
	}
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

func (s *memChunkStore) Write(file string, chunks []domain.Chunk) error {
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	s.data[file] = out
	return nil
}

// memCandidateStore is an in-memory CandidateStore.
type memCandidateStore struct {
	data map[string][]domain.Candidate
}

func newMemCandidateStore() *memCandidateStore {
	return &memCandidateStore{data: map[string][]domain.Candidate{}}
}

func (s *memCandidateStore) Files() ([]string, error) {
	files := make([]string, 0, len(s.data))
	for f := range s.data {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func (s *memCandidateStore) Read(file string) ([]domain.Candidate, error) {
	cands, ok := s.data[file]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", file, fs.ErrNotExist)
	}
	out := make([]domain.Candidate, len(cands))
	copy(out, cands)
	return out, nil
}

func (s *memCandidateStore) ExistingAnchors(file string) (map[string]bool, error) {
	anchors := map[string]bool{}
	for _, c := range s.data[file] {
		anchors[c.AnchorChunkID] = true
	}
	return anchors, nil
}

func (s *memCandidateStore) OpenAppend(file string) (driven.CandidateWriter, error) {
	return &memCandidateWriter{store: s, file: file}, nil
}

type memCandidateWriter struct {
	store *memCandidateStore
	file  string
}

func (w *memCandidateWriter) Append(c domain.Candidate) error {
	w.store.data[w.file] = append(w.store.data[w.file], c)
	return nil
}

func (w *memCandidateWriter) Close() error { return nil }

// memDatasetStore is an in-memory DatasetStore.
type memDatasetStore struct {
	records   map[int][]domain.DatasetRecord
	rejects   map[int][]domain.Reject
	changelog []string
}

func newMemDatasetStore() *memDatasetStore {
	return &memDatasetStore{
		records: map[int][]domain.DatasetRecord{},
		rejects: map[int][]domain.Reject{},
	}
}

func (s *memDatasetStore) NextVersion() (int, error) {
	max := 0
	for v := range s.records {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

func (s *memDatasetStore) ExistingIDs() (map[string]bool, error) {
	ids := map[string]bool{}
	for _, records := range s.records {
		for _, r := range records {
			ids[r.ID] = true
		}
	}
	return ids, nil
}

func (s *memDatasetStore) WriteRecords(version int, records []domain.DatasetRecord) (string, error) {
	if _, exists := s.records[version]; exists {
		return "", fmt.Errorf("%w: version %d exists", domain.ErrInvalidInput, version)
	}
	s.records[version] = records
	return fmt.Sprintf("mem://dataset_v%d.jsonl", version), nil
}

func (s *memDatasetStore) WriteRejects(version int, rejects []domain.Reject) (string, error) {
	s.rejects[version] = rejects
	return fmt.Sprintf("mem://dataset_rejects_v%d.jsonl", version), nil
}

func (s *memDatasetStore) AppendChangelog(entry string) error {
	s.changelog = append([]string{entry}, s.changelog...)
	return nil
}

// fakeEmbedder returns fixed vectors keyed by text, falling back to a
// deterministic fill vector.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
	batches int

	// shortBatch makes one EmbedBatch call drop its last vector.
	shortBatch bool
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, e.dim)
	for i := range v {
		v[i] = float32(len(text)%7) + float32(i)
	}
	return v, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches++
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if e.shortBatch && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int            { return e.dim }
func (e *fakeEmbedder) ModelName() string          { return "fake-embed" }
func (e *fakeEmbedder) Ping(context.Context) error { return nil }
func (e *fakeEmbedder) Close() error               { return nil }

// scriptedLLM replies with a fixed sequence and records what it was asked.
type scriptedLLM struct {
	replies    []string
	calls      int
	lastUser   string
	lastSystem string
	err        error
}

func (l *scriptedLLM) Generate(_ context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	return l.next(prompt, "")
}

func (l *scriptedLLM) Chat(_ context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	var system, user string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}
	return l.next(user, system)
}

func (l *scriptedLLM) next(user, system string) (string, error) {
	l.lastUser = user
	l.lastSystem = system
	if l.err != nil {
		return "", l.err
	}
	if l.calls >= len(l.replies) {
		return "", fmt.Errorf("%w: no scripted reply %d", domain.ErrMalformedResponse, l.calls)
	}
	reply := l.replies[l.calls]
	l.calls++
	return reply, nil
}

func (l *scriptedLLM) ModelName() string          { return "fake-llm" }
func (l *scriptedLLM) Ping(context.Context) error { return nil }
func (l *scriptedLLM) Close() error               { return nil }

// mapPromptStore serves templates from a map.
type mapPromptStore map[string]string

func (s mapPromptStore) Load(name string) (string, error) {
	tpl, ok := s[name]
	if !ok {
		return "", fmt.Errorf("prompt %s: %w", name, domain.ErrNotFound)
	}
	return tpl, nil
}

func (s mapPromptStore) Reload() {}

// testPrompts returns minimal templates with the production placeholder
// layout.
func testPrompts() mapPromptStore {
	return mapPromptStore{
		driven.PromptAnnotateSystem: "annotate as json",
		driven.PromptAnnotateUser:   "title=%s\n%sfocus=%s\n%sct:%s\ndom:%s\nar:%s\ntl:%s\ncr:%s",
		driven.PromptGenerateSystem: "generate as json array",
		driven.PromptGenerateUser:   "pairs=%d lang=%s\n%s",
	}
}

// testTaxonomy returns the vocabulary used across service tests.
func testTaxonomy() *domain.Taxonomy {
	return &domain.Taxonomy{
		ContentTypes: []domain.TaxonomyEntry{
			{ID: "textbook", Label: "Textbook"},
			{ID: "paper", Label: "Paper"},
		},
		Domains: []domain.TaxonomyEntry{
			{ID: "thermodynamics"},
			{ID: "hpc"},
			{ID: "numerics"},
			{ID: "materials"},
		},
		ArtifactRoles: []domain.TaxonomyEntry{
			{ID: "reference"},
			{ID: "exercise"},
		},
		ChunkRoles: []domain.TaxonomyEntry{
			{ID: "definition"},
			{ID: "derivation"},
			{ID: "example"},
			{ID: "structural"},
			{ID: "heading"},
			{ID: "table"},
		},
		TrustLevels: []domain.TaxonomyEntry{
			{ID: "high", Rank: 1},
			{ID: "medium", Rank: 2},
			{ID: "low", Rank: 3},
		},
	}
}

// buildRetriever assembles a real flat index over the given chunks so
// retrieval tests exercise the production scoring path.
func buildRetriever(t *testing.T, metric domain.Metric, chunks []domain.Chunk, vectors [][]float32) *Retriever {
	t.Helper()
	require.Equal(t, len(chunks), len(vectors))

	manifest := domain.IndexManifest{
		Metric:     metric,
		Direction:  metric.Direction(),
		Dimensions: len(vectors[0]),
		Model:      "fake-embed",
	}
	ix, err := flat.New(manifest)
	require.NoError(t, err)

	entries := make([]domain.IndexEntry, 0, len(chunks))
	for i := range chunks {
		require.NoError(t, ix.Add(vectors[i]))
		entries = append(entries, domain.IndexEntry{
			VectorID: i,
			ChunkID:  chunks[i].ChunkID,
			DocID:    chunks[i].DocID,
			Language: chunks[i].Language,
			Semantic: chunks[i].Semantic,
		})
	}

	r, err := NewRetriever(ix, entries)
	require.NoError(t, err)
	return r
}

// annotatedChunk builds a content chunk with a model annotation.
func annotatedChunk(docID, chunkID, content string, sem *domain.Semantic) domain.Chunk {
	if sem != nil && sem.Provenance.Mode == "" {
		sem.Provenance.Mode = domain.ProvenanceModel
	}
	return domain.Chunk{
		DocID:    docID,
		ChunkID:  chunkID,
		Language: "en",
		Content:  content,
		Semantic: sem,
	}
}
