package jsonl

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

// Ensure DatasetStore implements the interface.
var _ driven.DatasetStore = (*DatasetStore)(nil)

// changelogName is the per-corpus dataset changelog file.
const changelogName = "CHANGELOG.md"

// versionRe extracts the version number from a dataset filename.
var versionRe = regexp.MustCompile(`_v(\d+)\.jsonl$`)

// DatasetStore manages versioned dataset files in one directory.
// Files are named <name>_v<N>.jsonl; released versions are never
// rewritten, a new curation run writes the next version.
type DatasetStore struct {
	dir  string
	name string
}

// NewDatasetStore creates a store for the named dataset in dir.
func NewDatasetStore(dir, name string) *DatasetStore {
	return &DatasetStore{dir: dir, name: name}
}

// Dir returns the store directory.
func (s *DatasetStore) Dir() string {
	return s.dir
}

// recordPath returns the dataset file path for a version.
func (s *DatasetStore) recordPath(version int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_v%d.jsonl", s.name, version))
}

// rejectsPath returns the rejects file path for a version.
func (s *DatasetStore) rejectsPath(version int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_rejects_v%d.jsonl", s.name, version))
}

// versionFiles returns existing dataset files mapped by version number.
func (s *DatasetStore) versionFiles() (map[int]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return map[int]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", s.dir, err)
	}

	prefix := s.name + "_v"
	rejectsPrefix := s.name + "_rejects_v"
	out := make(map[int]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		if len(name) > len(rejectsPrefix) && name[:len(rejectsPrefix)] == rejectsPrefix {
			continue
		}
		m := versionRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out[v] = filepath.Join(s.dir, name)
	}
	return out, nil
}

// NextVersion scans existing dataset files and returns the next unused
// version number, starting at 1.
func (s *DatasetStore) NextVersion() (int, error) {
	files, err := s.versionFiles()
	if err != nil {
		return 0, err
	}
	max := 0
	for v := range files {
		if v > max {
			max = v
		}
	}
	return max + 1, nil
}

// ExistingIDs returns record IDs present across all dataset versions.
func (s *DatasetStore) ExistingIDs() (map[string]bool, error) {
	files, err := s.versionFiles()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	for _, path := range files {
		records, err := readRecords[domain.DatasetRecord](path)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if r.ID != "" {
				ids[r.ID] = true
			}
		}
	}
	return ids, nil
}

// WriteRecords writes a new dataset version file and returns its path.
// Refuses to overwrite an existing version.
func (s *DatasetStore) WriteRecords(version int, records []domain.DatasetRecord) (string, error) {
	path := s.recordPath(version)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: dataset version %d already released at %s",
			domain.ErrInvalidInput, version, path)
	}
	if err := writeRecords(path, records); err != nil {
		return "", err
	}
	return path, nil
}

// WriteRejects writes the rejects file for a version and returns its path.
func (s *DatasetStore) WriteRejects(version int, rejects []domain.Reject) (string, error) {
	path := s.rejectsPath(version)
	if err := writeRecords(path, rejects); err != nil {
		return "", err
	}
	return path, nil
}

// AppendChangelog prepends an entry to the dataset changelog, newest
// entry first.
func (s *DatasetStore) AppendChangelog(entry string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	path := filepath.Join(s.dir, changelogName)

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read changelog: %w", err)
	}

	content := entry
	if len(existing) > 0 {
		content = entry + "\n" + string(existing)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write changelog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename changelog: %w", err)
	}
	return nil
}
