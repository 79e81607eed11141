package services

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/logger"
)

// Dedup key fields supported for exact deduplication.
const (
	dedupFieldInstruction = "instruction"
	dedupFieldOutput      = "output"
	dedupFieldInput       = "input"
)

// ID assignment strategies.
const (
	IDStrategySequential = "sequential"
	IDStrategyCandidate  = "candidate"
	IDStrategyHash       = "hash"
)

// DatasetBuilderConfig tunes the final dataset build.
type DatasetBuilderConfig struct {
	Name          string
	SchemaVersion string

	// Version is a number or "auto" to pick the next unused one.
	Version string

	// ID assignment.
	IDStrategy    string
	IDZeroPad     int
	WorkspaceAbbr string

	// Length bounds.
	MinQuestionChars int
	MaxQuestionChars int
	MinAnswerChars   int
	MaxAnswerChars   int

	// Filters. Empty lists allow everything.
	LanguagesAllowed       []string
	TrustLevelsAllowed     []string
	ContentTypesAllowed    []string
	RequireNonemptySources bool
	DropIfLanguageMismatch bool

	// DedupKeys joins the named record fields for exact deduplication.
	DedupKeys []string

	WriteChangelog bool
	WriteRejects   bool
	CreatedBy      string
	Workspace      string

	// Resume skips records whose IDs exist in released versions.
	Resume bool

	// DryRun validates and counts without writing anything.
	DryRun bool

	// Debug limits. Zero means unlimited.
	LimitFiles    int
	LimitExamples int
}

// DatasetBuilder merges candidate files into one released, versioned,
// deduplicated dataset file.
type DatasetBuilder struct {
	cfg DatasetBuilderConfig
}

// NewDatasetBuilder creates a dataset builder.
func NewDatasetBuilder(cfg DatasetBuilderConfig) *DatasetBuilder {
	if cfg.Name == "" {
		cfg.Name = "qa_dataset"
	}
	if cfg.IDStrategy == "" {
		cfg.IDStrategy = IDStrategyHash
	}
	if cfg.IDZeroPad <= 0 {
		cfg.IDZeroPad = 6
	}
	if cfg.WorkspaceAbbr == "" {
		cfg.WorkspaceAbbr = "qa"
	}
	if len(cfg.DedupKeys) == 0 {
		cfg.DedupKeys = []string{dedupFieldInstruction, dedupFieldOutput}
	}
	if cfg.CreatedBy == "" {
		cfg.CreatedBy = "llm_auto"
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "1.0"
	}
	return &DatasetBuilder{cfg: cfg}
}

// DatasetResult summarises a dataset build.
type DatasetResult struct {
	Version     int
	Read        int
	Kept        int
	Rejected    int
	Deduped     int
	Resumed     int
	Path        string
	RejectsPath string
}

// Run builds the next dataset version from all candidate files.
func (b *DatasetBuilder) Run(candidates driven.CandidateStore, dataset driven.DatasetStore) (DatasetResult, error) {
	var res DatasetResult

	version, err := b.resolveVersion(dataset)
	if err != nil {
		return res, err
	}
	res.Version = version

	existingIDs := map[string]bool{}
	if b.cfg.Resume {
		existingIDs, err = dataset.ExistingIDs()
		if err != nil {
			return res, err
		}
		logger.Info("resume: %d ids already released", len(existingIDs))
	}

	files, err := candidates.Files()
	if err != nil {
		return res, fmt.Errorf("list candidate files: %w", err)
	}
	if b.cfg.LimitFiles > 0 && len(files) > b.cfg.LimitFiles {
		files = files[:b.cfg.LimitFiles]
	}

	var records []domain.DatasetRecord
	var rejects []domain.Reject
	dedupSeen := map[string]bool{}
	seq := 0

fileLoop:
	for _, file := range files {
		cands, err := candidates.Read(file)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", file, err)
		}
		for line, cand := range cands {
			res.Read++

			record, reason := b.validate(&cand, version)
			if reason != "" {
				res.Rejected++
				rejects = append(rejects, domain.Reject{
					Reason:        reason,
					File:          file,
					Line:          line + 1,
					CandidateID:   cand.ID,
					AnchorChunkID: cand.AnchorChunkID,
				})
				continue
			}

			key := b.dedupKey(record)
			if dedupSeen[key] {
				res.Deduped++
				continue
			}
			dedupSeen[key] = true

			seq++
			record.ID = b.makeID(seq, record)

			if b.cfg.Resume && existingIDs[record.ID] {
				res.Resumed++
				continue
			}

			records = append(records, *record)
			res.Kept++
			if b.cfg.LimitExamples > 0 && res.Kept >= b.cfg.LimitExamples {
				break fileLoop
			}
		}
	}

	logger.Info("dataset v%d: read %d, kept %d, rejected %d, deduped %d, resumed %d",
		version, res.Read, res.Kept, res.Rejected, res.Deduped, res.Resumed)

	if b.cfg.DryRun {
		logger.Info("dry run: nothing written")
		return res, nil
	}

	path, err := dataset.WriteRecords(version, records)
	if err != nil {
		return res, err
	}
	res.Path = path

	if b.cfg.WriteRejects && len(rejects) > 0 {
		rejectsPath, err := dataset.WriteRejects(version, rejects)
		if err != nil {
			return res, err
		}
		res.RejectsPath = rejectsPath
	}

	if b.cfg.WriteChangelog {
		if err := dataset.AppendChangelog(b.changelogEntry(&res)); err != nil {
			return res, err
		}
	}
	return res, nil
}

// resolveVersion returns the concrete version number for this build.
func (b *DatasetBuilder) resolveVersion(dataset driven.DatasetStore) (int, error) {
	if strings.EqualFold(b.cfg.Version, "auto") || b.cfg.Version == "" {
		return dataset.NextVersion()
	}
	v, err := strconv.Atoi(strings.TrimPrefix(b.cfg.Version, "v"))
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: bad dataset version %q", domain.ErrInvalidInput, b.cfg.Version)
	}
	return v, nil
}

// validate maps one candidate to a dataset record, or returns a reject
// reason.
func (b *DatasetBuilder) validate(cand *domain.Candidate, version int) (*domain.DatasetRecord, string) {
	q := strings.TrimSpace(cand.Question)
	a := strings.TrimSpace(cand.Answer)

	if q == "" {
		return nil, "missing_or_empty:question"
	}
	if a == "" {
		return nil, "missing_or_empty:answer"
	}
	if b.cfg.MinQuestionChars > 0 && len(q) < b.cfg.MinQuestionChars {
		return nil, "question_too_short"
	}
	if b.cfg.MaxQuestionChars > 0 && len(q) > b.cfg.MaxQuestionChars {
		return nil, "question_too_long"
	}
	if b.cfg.MinAnswerChars > 0 && len(a) < b.cfg.MinAnswerChars {
		return nil, "answer_too_short"
	}
	if b.cfg.MaxAnswerChars > 0 && len(a) > b.cfg.MaxAnswerChars {
		return nil, "answer_too_long"
	}

	lang := strings.TrimSpace(cand.Language)
	if langs := toSet(b.cfg.LanguagesAllowed); lang != "" && len(langs) > 0 && !langs[lang] {
		return nil, "language_not_allowed"
	}
	trust := strings.TrimSpace(cand.TrustLevel)
	if trusts := toSet(b.cfg.TrustLevelsAllowed); trust != "" && len(trusts) > 0 && !trusts[trust] {
		return nil, "trust_level_not_allowed"
	}
	if ctypes := toSet(b.cfg.ContentTypesAllowed); len(cand.ContentType) > 0 && len(ctypes) > 0 && !intersects(cand.ContentType, ctypes) {
		return nil, "content_type_not_allowed"
	}

	if b.cfg.RequireNonemptySources && len(cand.SourceChunks) == 0 {
		return nil, "missing_sources"
	}

	if b.cfg.DropIfLanguageMismatch && (lang == "de" || lang == "en") {
		detected := detectLangSimple(q + " " + a)
		if (detected == "de" || detected == "en") && detected != lang {
			return nil, "language_mismatch"
		}
	}

	sourceIDs := make([]string, 0, len(cand.SourceChunks))
	for _, cid := range cand.SourceChunks {
		if cid = strings.TrimSpace(cid); cid != "" {
			sourceIDs = append(sourceIDs, "chunk:"+cid)
		}
	}
	if len(sourceIDs) == 0 && cand.AnchorChunkID != "" {
		sourceIDs = append(sourceIDs, "chunk:"+cand.AnchorChunkID)
	}

	if lang == "" {
		lang = domain.LanguageUnknown
	}
	if trust == "" {
		trust = "unknown"
	}

	topic := ""
	if len(cand.Domain) > 0 {
		topic = slug(cand.Domain[0])
	}

	return &domain.DatasetRecord{
		Instruction:   q,
		Input:         "",
		Output:        a,
		Language:      lang,
		ContentType:   cand.ContentType,
		Domain:        cand.Domain,
		TrustLevel:    trust,
		SourceIDs:     sourceIDs,
		CreatedBy:     b.cfg.CreatedBy,
		CreatedAt:     time.Now().UTC(),
		Version:       fmt.Sprintf("v%d", version),
		CandidateID:   cand.ID,
		AnchorChunkID: cand.AnchorChunkID,
		AnchorDocID:   cand.AnchorDocID,
		Difficulty:    cand.Difficulty,
		Topic:         topic,
		Workspace:     b.cfg.Workspace,
	}, ""
}

// dedupKey joins the configured record fields.
func (b *DatasetBuilder) dedupKey(r *domain.DatasetRecord) string {
	parts := make([]string, 0, len(b.cfg.DedupKeys))
	for _, k := range b.cfg.DedupKeys {
		switch k {
		case dedupFieldInstruction:
			parts = append(parts, strings.TrimSpace(r.Instruction))
		case dedupFieldOutput:
			parts = append(parts, strings.TrimSpace(r.Output))
		case dedupFieldInput:
			parts = append(parts, strings.TrimSpace(r.Input))
		}
	}
	return strings.Join(parts, "\n")
}

// makeID assigns a record ID per the configured strategy.
func (b *DatasetBuilder) makeID(seq int, r *domain.DatasetRecord) string {
	switch b.cfg.IDStrategy {
	case IDStrategyCandidate:
		if r.CandidateID != "" {
			return r.CandidateID
		}
	case IDStrategyHash:
		h := sha1.Sum([]byte(r.AnchorChunkID + "\n" + r.Instruction + "\n" + r.Output))
		return fmt.Sprintf("%s_%s_q1", b.cfg.WorkspaceAbbr, hex.EncodeToString(h[:])[:16])
	}
	return fmt.Sprintf("%s_%0*d_q1", b.cfg.WorkspaceAbbr, b.cfg.IDZeroPad, seq)
}

// changelogEntry renders one changelog section for this build.
func (b *DatasetBuilder) changelogEntry(res *DatasetResult) string {
	filters := []string{}
	if len(b.cfg.LanguagesAllowed) > 0 {
		filters = append(filters, "languages="+strings.Join(b.cfg.LanguagesAllowed, ","))
	}
	if len(b.cfg.TrustLevelsAllowed) > 0 {
		filters = append(filters, "trust="+strings.Join(b.cfg.TrustLevelsAllowed, ","))
	}
	if len(b.cfg.ContentTypesAllowed) > 0 {
		filters = append(filters, "content_types="+strings.Join(b.cfg.ContentTypesAllowed, ","))
	}
	if b.cfg.DropIfLanguageMismatch {
		filters = append(filters, "drop_language_mismatch")
	}
	filterLine := "none"
	if len(filters) > 0 {
		filterLine = strings.Join(filters, "; ")
	}

	return fmt.Sprintf(`## v%d - %s

- output: %s
- schema_version: %s
- read: %d
- kept: %d
- dropped: %d
- duplicates_removed: %d
- filters: %s
`,
		res.Version, time.Now().UTC().Format(time.RFC3339),
		res.Path, b.cfg.SchemaVersion, res.Read, res.Kept, res.Rejected, res.Deduped, filterLine)
}

var (
	deWords   = regexp.MustCompile(`\b(der|die|das|und|oder|mit|für|ist|sind)\b`)
	enWords   = regexp.MustCompile(`\b(the|and|or|of|to|in|for|with|is|are)\b`)
	slugBad   = regexp.MustCompile(`[^a-z0-9]+`)
	slugTrim  = regexp.MustCompile(`^_+|_+$`)
	umlautSet = "äöüß"
)

// detectLangSimple is a crude de/en heuristic: umlaut density and a few
// function words. Anything ambiguous stays unknown.
func detectLangSimple(text string) string {
	t := strings.ToLower(text)
	deMarks := 0
	for _, ch := range t {
		if strings.ContainsRune(umlautSet, ch) {
			deMarks++
		}
	}
	en := len(enWords.FindAllString(t, -1))
	de := len(deWords.FindAllString(t, -1))
	if deMarks >= 2 || de > en+2 {
		return "de"
	}
	if en > de+2 {
		return "en"
	}
	return domain.LanguageUnknown
}

// slug lowercases and squashes a label into a topic token.
func slug(s string) string {
	s = slugBad.ReplaceAllString(strings.ToLower(s), "_")
	return slugTrim.ReplaceAllString(s, "")
}
