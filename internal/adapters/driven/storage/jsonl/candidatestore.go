package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

// Ensure CandidateStore implements the interface.
var _ driven.CandidateStore = (*CandidateStore)(nil)

// CandidateStore reads and appends per-document candidate files.
type CandidateStore struct {
	dir string
}

// NewCandidateStore creates a store over the given directory.
func NewCandidateStore(dir string) *CandidateStore {
	return &CandidateStore{dir: dir}
}

// Dir returns the store directory.
func (s *CandidateStore) Dir() string {
	return s.dir
}

// Files lists the per-document candidate files, sorted by name.
func (s *CandidateStore) Files() ([]string, error) {
	return listFiles(s.dir)
}

// Read loads all candidate records from one file, preserving order.
func (s *CandidateStore) Read(file string) ([]domain.Candidate, error) {
	return readRecords[domain.Candidate](filepath.Join(s.dir, file))
}

// ExistingAnchors returns the anchor chunk IDs already present in a
// file. A missing file means no anchors yet, not an error.
func (s *CandidateStore) ExistingAnchors(file string) (map[string]bool, error) {
	path := filepath.Join(s.dir, file)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	candidates, err := readRecords[domain.Candidate](path)
	if err != nil {
		return nil, err
	}
	anchors := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.AnchorChunkID != "" {
			anchors[c.AnchorChunkID] = true
		}
	}
	return anchors, nil
}

// OpenAppend opens a file for appending candidate records.
func (s *CandidateStore) OpenAppend(file string) (driven.CandidateWriter, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	path := filepath.Join(s.dir, file)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &candidateWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// candidateWriter appends records line by line, flushing after each so
// partial progress survives interruption.
type candidateWriter struct {
	f *os.File
	w *bufio.Writer
}

// Append writes one candidate record and flushes it.
func (cw *candidateWriter) Append(c domain.Candidate) error {
	data, err := json.Marshal(&c)
	if err != nil {
		return fmt.Errorf("encode candidate %s: %w", c.ID, err)
	}
	if _, err := cw.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write candidate %s: %w", c.ID, err)
	}
	return cw.w.Flush()
}

// Close flushes and closes the underlying file.
func (cw *candidateWriter) Close() error {
	if err := cw.w.Flush(); err != nil {
		cw.f.Close()
		return err
	}
	return cw.f.Close()
}
