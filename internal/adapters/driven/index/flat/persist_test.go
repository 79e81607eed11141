package flat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	p := Paths{Dir: t.TempDir(), Name: "contextual"}

	ix := newTestIndex(t, domain.MetricInnerProduct, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	})
	entries := []domain.IndexEntry{
		{VectorID: 0, ChunkID: "c1", DocID: "d1"},
		{VectorID: 1, ChunkID: "c2", DocID: "d1", Language: "en"},
	}
	require.NoError(t, Save(p, ix, entries))

	loaded, loadedEntries, err := Open(p)
	require.NoError(t, err)
	defer loaded.Close()

	assert.Equal(t, 2, loaded.Count())
	assert.Equal(t, domain.MetricInnerProduct, loaded.Manifest().Metric)
	assert.Equal(t, domain.DirectionMaximize, loaded.Manifest().Direction)
	require.Len(t, loadedEntries, 2)
	assert.Equal(t, "c2", loadedEntries[1].ChunkID)

	vec, err := loaded.Reconstruct(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, vec)
}

func TestSaveRejectsEntryCountMismatch(t *testing.T) {
	p := Paths{Dir: t.TempDir(), Name: "contextual"}
	ix := newTestIndex(t, domain.MetricL2, [][]float32{{1, 0}})

	err := Save(p, ix, nil)
	assert.ErrorIs(t, err, domain.ErrIndexMismatch)
}

func TestOpenRejectsEntryCountMismatch(t *testing.T) {
	p := Paths{Dir: t.TempDir(), Name: "contextual"}
	ix := newTestIndex(t, domain.MetricL2, [][]float32{{1, 0}})
	require.NoError(t, Save(p, ix, []domain.IndexEntry{{VectorID: 0, ChunkID: "c1"}}))

	// Append a second entry behind the index's back.
	f, err := os.OpenFile(p.Entries(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"vector_id":1,"chunk_id":"ghost"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, _, err = Open(p)
	assert.ErrorIs(t, err, domain.ErrIndexMismatch)
}

func TestReadEntriesAcceptsLegacyFaissID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.jsonl")
	lines := `{"faiss_id":0,"chunk_id":"old","doc_id":"d1"}
{"vector_id":1,"chunk_id":"new","doc_id":"d1"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o600))

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].VectorID)
	assert.Equal(t, "old", entries[0].ChunkID)
	assert.Equal(t, 1, entries[1].VectorID)
}

func TestReadEntriesRejectsMissingVectorID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"chunk_id":"c1"}`+"\n"), 0o600))

	_, err := ReadEntries(path)
	assert.ErrorIs(t, err, domain.ErrMissingVectorID)
}

func TestLoadManifestRequiresDirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.toml")
	require.NoError(t, os.WriteFile(path, []byte("metric = \"l2\"\ndimensions = 4\n"), 0o600))

	_, err := LoadManifest(path)
	assert.Error(t, err)
}

func TestOpenRejectsManifestMetricMismatch(t *testing.T) {
	p := Paths{Dir: t.TempDir(), Name: "contextual"}
	ix := newTestIndex(t, domain.MetricL2, [][]float32{{1, 0}})
	require.NoError(t, Save(p, ix, []domain.IndexEntry{{VectorID: 0, ChunkID: "c1"}}))

	// Flip the manifest metric while the binary file stays l2.
	manifest := `metric = "inner_product"
direction = "maximize"
dimensions = 2
vectors = 1
`
	require.NoError(t, os.WriteFile(p.Manifest(), []byte(manifest), 0o600))

	_, _, err := Open(p)
	assert.ErrorIs(t, err, domain.ErrIndexMismatch)
}
