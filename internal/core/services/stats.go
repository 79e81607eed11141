package services

import (
	"sort"
	"strings"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

// LabelCount pairs a label with its occurrence count, for top-N reporting.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ChunkStats summarises annotation quality over a chunk corpus.
type ChunkStats struct {
	Files      int `json:"files"`
	Chunks     int `json:"chunks"`
	Annotated  int `json:"annotated"`
	Structural int `json:"structural"`
	Pending    int `json:"pending"`

	Languages   []LabelCount `json:"languages,omitempty"`
	TrustLevels []LabelCount `json:"trust_levels,omitempty"`
	Provenance  []LabelCount `json:"provenance,omitempty"`

	ContentTypes  []LabelCount `json:"content_types,omitempty"`
	Domains       []LabelCount `json:"domains,omitempty"`
	ArtifactRoles []LabelCount `json:"artifact_roles,omitempty"`
	ChunkRoles    []LabelCount `json:"chunk_roles,omitempty"`

	EmptySummary  int `json:"empty_summary"`
	EmptyKeyFacts int `json:"empty_key_facts"`
	EmptyDomains  int `json:"empty_domains"`

	// StructuralLeakage counts model-annotated chunks that still carry a
	// structural chunk role. A high number means the pre-filter is too lax.
	StructuralLeakage int `json:"structural_leakage"`
}

// CandidateStats summarises the generated candidate pool.
type CandidateStats struct {
	Files      int `json:"files"`
	Candidates int `json:"candidates"`
	Anchors    int `json:"anchors"`

	Difficulties []LabelCount `json:"difficulties,omitempty"`
	Languages    []LabelCount `json:"languages,omitempty"`

	MinPerAnchor int     `json:"min_per_anchor"`
	MaxPerAnchor int     `json:"max_per_anchor"`
	AvgPerAnchor float64 `json:"avg_per_anchor"`

	// AnchorGini measures how unevenly candidates spread over anchors.
	// Zero is perfectly even, values near one mean a few anchors dominate.
	AnchorGini float64 `json:"anchor_gini"`
}

// StatsReport is the full corpus report.
type StatsReport struct {
	Chunks     ChunkStats     `json:"chunks"`
	Candidates CandidateStats `json:"candidates"`
}

// StatsBuilder computes corpus quality statistics from annotated chunks and
// generated candidates.
type StatsBuilder struct {
	topN int
}

// NewStatsBuilder creates a stats builder reporting the topN most frequent
// labels per category.
func NewStatsBuilder(topN int) *StatsBuilder {
	if topN <= 0 {
		topN = 10
	}
	return &StatsBuilder{topN: topN}
}

// Run scans both stores and builds the report. A nil candidate store skips
// the candidate half.
func (s *StatsBuilder) Run(chunks driven.ChunkStore, candidates driven.CandidateStore) (StatsReport, error) {
	var report StatsReport

	cs, err := s.chunkStats(chunks)
	if err != nil {
		return report, err
	}
	report.Chunks = cs

	if candidates != nil {
		qs, err := s.candidateStats(candidates)
		if err != nil {
			return report, err
		}
		report.Candidates = qs
	}
	return report, nil
}

func (s *StatsBuilder) chunkStats(store driven.ChunkStore) (ChunkStats, error) {
	var st ChunkStats

	languages := map[string]int{}
	trusts := map[string]int{}
	provenance := map[string]int{}
	contentTypes := map[string]int{}
	domains := map[string]int{}
	artifactRoles := map[string]int{}
	chunkRoles := map[string]int{}

	files, err := store.Files()
	if err != nil {
		return st, err
	}
	st.Files = len(files)

	for _, file := range files {
		cs, err := store.Read(file)
		if err != nil {
			return st, err
		}
		for i := range cs {
			c := &cs[i]
			st.Chunks++
			if !c.Annotated() {
				st.Pending++
				continue
			}
			sem := c.Semantic
			mode := sem.Provenance.Mode
			provenance[orUnknown(mode)]++
			if mode == domain.ProvenanceRuleStructural {
				st.Structural++
				continue
			}
			st.Annotated++

			languages[orUnknown(c.Language)]++
			trusts[orUnknown(sem.TrustLevel)]++
			countLabels(contentTypes, sem.ContentType)
			countLabels(domains, sem.Domain)
			countLabels(artifactRoles, sem.ArtifactRole)
			countLabels(chunkRoles, sem.ChunkRole)

			if strings.TrimSpace(sem.Summary) == "" {
				st.EmptySummary++
			}
			if len(sem.KeyFacts) == 0 {
				st.EmptyKeyFacts++
			}
			if len(sem.Domain) == 0 {
				st.EmptyDomains++
			}
			if mode == domain.ProvenanceModel && containsString(sem.ChunkRole, domain.RoleStructural) {
				st.StructuralLeakage++
			}
		}
	}

	st.Languages = topCounts(languages, s.topN)
	st.TrustLevels = topCounts(trusts, s.topN)
	st.Provenance = topCounts(provenance, s.topN)
	st.ContentTypes = topCounts(contentTypes, s.topN)
	st.Domains = topCounts(domains, s.topN)
	st.ArtifactRoles = topCounts(artifactRoles, s.topN)
	st.ChunkRoles = topCounts(chunkRoles, s.topN)
	return st, nil
}

func (s *StatsBuilder) candidateStats(store driven.CandidateStore) (CandidateStats, error) {
	var st CandidateStats

	difficulties := map[string]int{}
	languages := map[string]int{}
	perAnchor := map[string]int{}

	files, err := store.Files()
	if err != nil {
		return st, err
	}
	st.Files = len(files)

	for _, file := range files {
		cands, err := store.Read(file)
		if err != nil {
			return st, err
		}
		for i := range cands {
			c := &cands[i]
			st.Candidates++
			difficulties[orUnknown(c.Difficulty)]++
			languages[orUnknown(c.Language)]++
			perAnchor[c.AnchorChunkID]++
		}
	}

	st.Anchors = len(perAnchor)
	st.Difficulties = topCounts(difficulties, s.topN)
	st.Languages = topCounts(languages, s.topN)

	if st.Anchors > 0 {
		counts := make([]int, 0, len(perAnchor))
		total := 0
		st.MinPerAnchor = st.Candidates
		for _, n := range perAnchor {
			counts = append(counts, n)
			total += n
			if n < st.MinPerAnchor {
				st.MinPerAnchor = n
			}
			if n > st.MaxPerAnchor {
				st.MaxPerAnchor = n
			}
		}
		st.AvgPerAnchor = float64(total) / float64(st.Anchors)
		st.AnchorGini = gini(counts)
	}
	return st, nil
}

func countLabels(m map[string]int, labels []string) {
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			m[l]++
		}
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// topCounts returns the n most frequent labels, ties broken alphabetically.
func topCounts(m map[string]int, n int) []LabelCount {
	out := make([]LabelCount, 0, len(m))
	for label, count := range m {
		out = append(out, LabelCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// gini computes the Gini coefficient of a count distribution.
func gini(counts []int) float64 {
	n := len(counts)
	if n == 0 {
		return 0
	}
	sorted := make([]int, n)
	copy(sorted, counts)
	sort.Ints(sorted)

	var cum, total float64
	for i, c := range sorted {
		total += float64(c)
		cum += float64(i+1) * float64(c)
	}
	if total == 0 {
		return 0
	}
	return (2*cum - float64(n+1)*total) / (float64(n) * total)
}
