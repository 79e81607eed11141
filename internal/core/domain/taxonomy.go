package domain

// TaxonomyEntry is one allowed label in an externally maintained
// enumeration. Rank orders trust levels (1 = most trusted); it is zero for
// the other taxonomies.
type TaxonomyEntry struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Rank        int    `yaml:"rank,omitempty" json:"rank,omitempty"`
}

// Taxonomy holds the externally maintained label enumerations used to
// validate and clip model output. Loaded at startup, never embedded in
// code, so new labels do not require a redeploy.
type Taxonomy struct {
	ContentTypes  []TaxonomyEntry `yaml:"content_type" json:"content_type"`
	Domains       []TaxonomyEntry `yaml:"domain" json:"domain"`
	ArtifactRoles []TaxonomyEntry `yaml:"artifact_role" json:"artifact_role"`
	ChunkRoles    []TaxonomyEntry `yaml:"chunk_role" json:"chunk_role"`
	TrustLevels   []TaxonomyEntry `yaml:"trust_level" json:"trust_level"`
}

// IDSet returns the set of IDs of the given entries.
func IDSet(entries []TaxonomyEntry) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID != "" {
			set[e.ID] = true
		}
	}
	return set
}

// LowestTrust returns the ID of the least trusted tier (highest rank).
// Falls back to "unknown" if no trust levels are configured.
func (t *Taxonomy) LowestTrust() string {
	lowest := ""
	maxRank := -1
	for _, e := range t.TrustLevels {
		if e.Rank > maxRank {
			maxRank = e.Rank
			lowest = e.ID
		}
	}
	if lowest == "" {
		return LanguageUnknown
	}
	return lowest
}

// DefaultTrust returns the tier used when the model names an unknown tier:
// "medium" if configured, otherwise the first configured tier.
func (t *Taxonomy) DefaultTrust() string {
	set := IDSet(t.TrustLevels)
	if set["medium"] {
		return "medium"
	}
	if len(t.TrustLevels) > 0 {
		return t.TrustLevels[0].ID
	}
	return LanguageUnknown
}

// ValidTrust reports whether id names a configured trust tier.
func (t *Taxonomy) ValidTrust(id string) bool {
	return IDSet(t.TrustLevels)[id]
}

// ClipLabels filters values against the allowed entries and truncates the
// survivors to max items, preserving order. The second return value is true
// when values were non-empty but nothing survived the taxonomy filter.
func ClipLabels(values []string, allowed []TaxonomyEntry, max int) ([]string, bool) {
	set := IDSet(allowed)
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if set[v] {
			kept = append(kept, v)
		}
	}
	if max > 0 && len(kept) > max {
		kept = kept[:max]
	}
	filtered := len(values) > 0 && len(kept) == 0
	return kept, filtered
}
