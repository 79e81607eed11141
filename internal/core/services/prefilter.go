package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/logger"
)

// DefaultMinContentChars is the structural length threshold.
const DefaultMinContentChars = 40

// nonInformative matches text made of digits, punctuation, symbols and
// whitespace only (page numbers, rules, separator junk).
var nonInformative = regexp.MustCompile(`^[\d\s\p{P}\p{S}]+$`)

// labelPatterns match bare figure/table/chapter labels in English and
// German, e.g. "Table 4.1", "Abbildung 3:", "Fig. 2", "Kapitel 7".
var labelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(fig\.?|figure|abb\.?|abbildung|tab\.?|table|tabelle)\s*\d+(\.\d+)*\s*[:.]?\s*$`),
	regexp.MustCompile(`(?i)^(chapter|kapitel|section|abschnitt|anhang|appendix)\s+[\dA-Z]+(\.\d+)*\s*[:.]?\s*$`),
}

// PreFilter deterministically recognises structural chunks (headings,
// captions, page furniture) and annotates them without any model call.
type PreFilter struct {
	minContentChars int
	taxonomy        *domain.Taxonomy
}

// NewPreFilter creates a pre-filter. A non-positive threshold falls back
// to DefaultMinContentChars.
func NewPreFilter(minContentChars int, taxonomy *domain.Taxonomy) *PreFilter {
	if minContentChars <= 0 {
		minContentChars = DefaultMinContentChars
	}
	return &PreFilter{
		minContentChars: minContentChars,
		taxonomy:        taxonomy,
	}
}

// IsStructural reports whether the chunk carries no informational content
// worth a model call. The check is pure: same input, same answer.
func (f *PreFilter) IsStructural(c *domain.Chunk) bool {
	text := strings.TrimSpace(c.Content)
	if len(text) < f.minContentChars {
		return true
	}
	if nonInformative.MatchString(text) {
		return true
	}
	for _, re := range labelPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Annotate forces a deterministic structural annotation onto the chunk:
// unknown language, empty label lists, the lowest configured trust tier
// and a structural chunk role, with every suppressed field recorded.
func (f *PreFilter) Annotate(c *domain.Chunk) {
	roles := []string{domain.RoleStructural}
	if c.Meta.HasHeading {
		roles = append(roles, domain.RoleHeading)
	}
	if c.Meta.HasTable {
		roles = append(roles, domain.RoleTable)
	}

	c.Language = domain.LanguageUnknown
	c.Semantic = &domain.Semantic{
		ContentType:  []string{},
		Domain:       []string{},
		ArtifactRole: []string{},
		ChunkRole:    roles,
		TrustLevel:   f.taxonomy.LowestTrust(),
		Summary:      "",
		Provenance: domain.Provenance{
			Mode: domain.ProvenanceRuleStructural,
			EmptyReasons: map[string]string{
				"content_type":  domain.EmptyReasonRule,
				"domain":        domain.EmptyReasonRule,
				"artifact_role": domain.EmptyReasonRule,
				"summary":       domain.EmptyReasonRule,
				"key_facts":     domain.EmptyReasonRule,
				"tags":          domain.EmptyReasonRule,
			},
			// No timestamp: rule annotations must be byte-identical
			// across runs so re-running never rewrites records.
		},
	}
}

// PreFilterResult summarises a partition run.
type PreFilterResult struct {
	Files      int
	Chunks     int
	Structural int
	Content    int
}

// Partition splits every chunk file into structural chunks (written to
// structuralOut with forced annotations) and content-bearing chunks
// (written verbatim to contentOut). Limits of zero mean unlimited.
func (f *PreFilter) Partition(
	in, structuralOut, contentOut driven.ChunkStore,
	limitFiles, limitChunks int,
) (PreFilterResult, error) {
	var res PreFilterResult

	files, err := in.Files()
	if err != nil {
		return res, fmt.Errorf("list chunk files: %w", err)
	}
	if limitFiles > 0 && len(files) > limitFiles {
		files = files[:limitFiles]
	}

	for _, file := range files {
		chunks, err := in.Read(file)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", file, err)
		}
		if limitChunks > 0 && len(chunks) > limitChunks {
			chunks = chunks[:limitChunks]
		}

		var structural, content []domain.Chunk
		for i := range chunks {
			res.Chunks++
			if f.IsStructural(&chunks[i]) {
				f.Annotate(&chunks[i])
				structural = append(structural, chunks[i])
				logger.Debug("structural chunk %s (%s)", chunks[i].ChunkID, file)
				continue
			}
			content = append(content, chunks[i])
		}

		if err := structuralOut.Write(file, structural); err != nil {
			return res, fmt.Errorf("write structural %s: %w", file, err)
		}
		if err := contentOut.Write(file, content); err != nil {
			return res, fmt.Errorf("write content %s: %w", file, err)
		}

		res.Files++
		res.Structural += len(structural)
		res.Content += len(content)
		logger.Info("prefilter %s: %d structural, %d content", file, len(structural), len(content))
	}
	return res, nil
}
