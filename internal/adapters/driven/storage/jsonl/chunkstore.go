package jsonl

import (
	"path/filepath"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore reads and writes per-document chunk record files.
type ChunkStore struct {
	dir string
}

// NewChunkStore creates a store over the given directory.
func NewChunkStore(dir string) *ChunkStore {
	return &ChunkStore{dir: dir}
}

// Dir returns the store directory.
func (s *ChunkStore) Dir() string {
	return s.dir
}

// Files lists the per-document chunk files, sorted by name.
func (s *ChunkStore) Files() ([]string, error) {
	return listFiles(s.dir)
}

// Read loads all chunk records from one file, preserving order.
func (s *ChunkStore) Read(file string) ([]domain.Chunk, error) {
	return readRecords[domain.Chunk](filepath.Join(s.dir, file))
}

// Write atomically replaces a file with the given records.
func (s *ChunkStore) Write(file string, chunks []domain.Chunk) error {
	return writeRecords(filepath.Join(s.dir, file), chunks)
}
