package driven

import "github.com/dachslabs/qaforge/internal/core/domain"

// ChunkStore provides access to per-document chunk record files.
type ChunkStore interface {
	// Files lists the per-document chunk files in the workspace, sorted.
	Files() ([]string, error)

	// Read loads all chunk records from one file, preserving order.
	Read(file string) ([]domain.Chunk, error)

	// Write atomically replaces a file with the given records.
	Write(file string, chunks []domain.Chunk) error
}

// CandidateStore provides access to per-document candidate files.
type CandidateStore interface {
	// Files lists the per-document candidate files in the workspace, sorted.
	Files() ([]string, error)

	// Read loads all candidate records from one file, preserving order.
	Read(file string) ([]domain.Candidate, error)

	// ExistingAnchors returns the anchor chunk IDs already present in a
	// file, so a rerun can skip anchors it has already generated for.
	ExistingAnchors(file string) (map[string]bool, error)

	// OpenAppend opens a file for appending candidate records.
	OpenAppend(file string) (CandidateWriter, error)
}

// CandidateWriter appends candidate records one at a time, flushing each
// line so partial progress survives interruption.
type CandidateWriter interface {
	Append(c domain.Candidate) error
	Close() error
}

// DatasetStore manages versioned dataset files, rejects and the changelog.
type DatasetStore interface {
	// NextVersion scans existing dataset files and returns the next
	// unused version number, starting at 1.
	NextVersion() (int, error)

	// ExistingIDs returns record IDs present across all dataset versions.
	ExistingIDs() (map[string]bool, error)

	// WriteRecords writes a new dataset version file.
	WriteRecords(version int, records []domain.DatasetRecord) (string, error)

	// WriteRejects writes the rejects file for a version.
	WriteRejects(version int, rejects []domain.Reject) (string, error)

	// AppendChangelog prepends an entry to the dataset changelog.
	AppendChangelog(entry string) error
}
