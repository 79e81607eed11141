package flat

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/dachslabs/qaforge/internal/core/domain"
)

// On-disk vector file layout (little endian):
//
//	magic   [4]byte  "QFIX"
//	version uint8    1
//	metric  uint8    0 = inner_product, 1 = l2
//	dim     uint32
//	count   uint32
//	data    count*dim float32
var magic = [4]byte{'Q', 'F', 'I', 'X'}

const formatVersion = 1

// Paths derives the three artifact file paths for a named index.
type Paths struct {
	Dir  string
	Name string
}

// Vectors returns the binary vector file path.
func (p Paths) Vectors() string { return filepath.Join(p.Dir, p.Name+".index") }

// Manifest returns the TOML manifest path.
func (p Paths) Manifest() string { return filepath.Join(p.Dir, p.Name+".manifest.toml") }

// Entries returns the JSONL entry side-table path.
func (p Paths) Entries() string { return filepath.Join(p.Dir, p.Name+"_meta.jsonl") }

func metricByte(m domain.Metric) (byte, error) {
	switch m {
	case domain.MetricInnerProduct:
		return 0, nil
	case domain.MetricL2:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, m)
	}
}

func metricFromByte(b byte) (domain.Metric, error) {
	switch b {
	case 0:
		return domain.MetricInnerProduct, nil
	case 1:
		return domain.MetricL2, nil
	default:
		return "", fmt.Errorf("%w: unknown metric byte %d", domain.ErrInvalidInput, b)
	}
}

// Save writes all three index artifacts. Each file is written to a
// temp path and renamed so a crash never leaves a torn artifact.
func Save(p Paths, ix *Index, entries []domain.IndexEntry) error {
	if len(entries) != ix.Count() {
		return fmt.Errorf("%w: %d entries for %d vectors",
			domain.ErrIndexMismatch, len(entries), ix.Count())
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := writeAtomic(p.Vectors(), encodeVectors(ix)); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	manifestData, err := toml.Marshal(ix.Manifest())
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeAtomic(p.Manifest(), manifestData); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return fmt.Errorf("encode entry %d: %w", i, err)
		}
	}
	if err := writeAtomic(p.Entries(), buf.Bytes()); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}
	return nil
}

// Open loads the index artifacts and verifies their mutual consistency:
// the manifest, vector file and entry side-table must agree on metric,
// dimensions and count.
func Open(p Paths) (*Index, []domain.IndexEntry, error) {
	manifest, err := LoadManifest(p.Manifest())
	if err != nil {
		return nil, nil, err
	}

	ix, err := loadVectors(p.Vectors(), manifest)
	if err != nil {
		return nil, nil, err
	}

	entries, err := ReadEntries(p.Entries())
	if err != nil {
		return nil, nil, err
	}
	if len(entries) != ix.Count() {
		return nil, nil, fmt.Errorf("%w: %d entries for %d vectors",
			domain.ErrIndexMismatch, len(entries), ix.Count())
	}
	return ix, entries, nil
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (domain.IndexManifest, error) {
	var m domain.IndexManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("%w: read manifest: %v", domain.ErrIndexUnavailable, err)
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if _, err := metricByte(m.Metric); err != nil {
		return m, err
	}
	if m.Direction != domain.DirectionMaximize && m.Direction != domain.DirectionMinimize {
		return m, fmt.Errorf("%w: manifest has no score direction", domain.ErrInvalidInput)
	}
	return m, nil
}

// ReadEntries loads the JSONL entry side-table, accepting the legacy
// "faiss_id" field name.
func ReadEntries(path string) ([]domain.IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read entries: %v", domain.ErrIndexUnavailable, err)
	}
	defer f.Close()

	var entries []domain.IndexEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e domain.IndexEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("parse entry %s:%d: %w", path, line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	return entries, nil
}

func encodeVectors(ix *Index) []byte {
	buf := new(bytes.Buffer)
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	mb, _ := metricByte(ix.manifest.Metric)
	buf.WriteByte(mb)
	binary.Write(buf, binary.LittleEndian, uint32(ix.dim))
	binary.Write(buf, binary.LittleEndian, uint32(ix.count))
	binary.Write(buf, binary.LittleEndian, ix.data)
	return buf.Bytes()
}

func loadVectors(path string, manifest domain.IndexManifest) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read vectors: %v", domain.ErrIndexUnavailable, err)
	}
	r := bytes.NewReader(data)

	var header [4]byte
	if _, err := r.Read(header[:]); err != nil || header != magic {
		return nil, fmt.Errorf("%w: bad vector file magic", domain.ErrIndexUnavailable)
	}
	version, _ := r.ReadByte()
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported vector file version %d", domain.ErrIndexUnavailable, version)
	}
	mb, _ := r.ReadByte()
	metric, err := metricFromByte(mb)
	if err != nil {
		return nil, err
	}
	if metric != manifest.Metric {
		return nil, fmt.Errorf("%w: vector file metric %q != manifest metric %q",
			domain.ErrIndexMismatch, metric, manifest.Metric)
	}

	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read vector header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read vector header: %w", err)
	}
	if int(dim) != manifest.Dimensions {
		return nil, fmt.Errorf("%w: vector file has %d dimensions, manifest says %d",
			domain.ErrIndexMismatch, dim, manifest.Dimensions)
	}

	vecs := make([]float32, int(dim)*int(count))
	if err := binary.Read(r, binary.LittleEndian, vecs); err != nil {
		return nil, fmt.Errorf("%w: truncated vector data: %v", domain.ErrIndexUnavailable, err)
	}

	return &Index{
		manifest: manifest,
		dim:      int(dim),
		data:     vecs,
		count:    int(count),
	}, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
