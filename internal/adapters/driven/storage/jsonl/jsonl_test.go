package jsonl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

func TestChunkStoreRoundTrip(t *testing.T) {
	store := NewChunkStore(t.TempDir())

	chunks := []domain.Chunk{
		{DocID: "doc1", ChunkID: "doc1_0001", Content: "first"},
		{DocID: "doc1", ChunkID: "doc1_0002", Content: "second"},
	}
	require.NoError(t, store.Write("doc1.jsonl", chunks))

	got, err := store.Read("doc1.jsonl")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "doc1_0001", got[0].ChunkID)
	assert.Equal(t, "second", got[1].Content)
}

func TestChunkStoreFilesSorted(t *testing.T) {
	store := NewChunkStore(t.TempDir())
	require.NoError(t, store.Write("b.jsonl", nil))
	require.NoError(t, store.Write("a.jsonl", nil))

	// A stray non-record file must not show up.
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("x"), 0o600))

	files, err := store.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jsonl", "b.jsonl"}, files)
}

func TestChunkStoreSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	store := NewChunkStore(dir)
	content := `{"doc_id":"d","chunk_id":"c1","content":"x"}

{"doc_id":"d","chunk_id":"c2","content":"y"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.jsonl"), []byte(content), 0o600))

	got, err := store.Read("d.jsonl")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCandidateStoreAppendAndResume(t *testing.T) {
	store := NewCandidateStore(t.TempDir())

	w, err := store.OpenAppend("doc1.jsonl")
	require.NoError(t, err)
	require.NoError(t, w.Append(domain.Candidate{
		ID: "qa_1", AnchorChunkID: "c1", Question: "q?", Answer: "a",
	}))
	require.NoError(t, w.Close())

	// Reopen and append more, as a resumed run would.
	w, err = store.OpenAppend("doc1.jsonl")
	require.NoError(t, err)
	require.NoError(t, w.Append(domain.Candidate{
		ID: "qa_2", AnchorChunkID: "c2", Question: "q2?", Answer: "a2",
	}))
	require.NoError(t, w.Close())

	got, err := store.Read("doc1.jsonl")
	require.NoError(t, err)
	require.Len(t, got, 2)

	anchors, err := store.ExistingAnchors("doc1.jsonl")
	require.NoError(t, err)
	assert.True(t, anchors["c1"])
	assert.True(t, anchors["c2"])
	assert.False(t, anchors["c3"])
}

func TestCandidateStoreExistingAnchorsMissingFile(t *testing.T) {
	store := NewCandidateStore(t.TempDir())

	anchors, err := store.ExistingAnchors("never-written.jsonl")
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestDatasetStoreVersioning(t *testing.T) {
	store := NewDatasetStore(t.TempDir(), "qa_dataset")

	v, err := store.NextVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = store.WriteRecords(1, []domain.DatasetRecord{
		{ID: "qa-000001", Instruction: "q", Output: "a", Version: "v1"},
	})
	require.NoError(t, err)

	// Rejects files must not count as dataset versions.
	_, err = store.WriteRejects(1, []domain.Reject{{Reason: "answer_too_short"}})
	require.NoError(t, err)

	v, err = store.NextVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestDatasetStoreRefusesOverwrite(t *testing.T) {
	store := NewDatasetStore(t.TempDir(), "qa_dataset")
	_, err := store.WriteRecords(1, nil)
	require.NoError(t, err)

	_, err = store.WriteRecords(1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDatasetStoreExistingIDsAcrossVersions(t *testing.T) {
	store := NewDatasetStore(t.TempDir(), "qa_dataset")

	_, err := store.WriteRecords(1, []domain.DatasetRecord{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	_, err = store.WriteRecords(2, []domain.DatasetRecord{{ID: "c"}})
	require.NoError(t, err)

	ids, err := store.ExistingIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.True(t, ids["b"])
	assert.True(t, ids["c"])
}

func TestDatasetStoreChangelogNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store := NewDatasetStore(dir, "qa_dataset")

	require.NoError(t, store.AppendChangelog("## v1\n- kept: 10\n"))
	require.NoError(t, store.AppendChangelog("## v2\n- kept: 12\n"))

	data, err := os.ReadFile(filepath.Join(dir, "CHANGELOG.md"))
	require.NoError(t, err)
	text := string(data)
	assert.Less(t, strings.Index(text, "## v2"), strings.Index(text, "## v1"))
}
