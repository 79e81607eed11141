package services

import (
	"fmt"
	"strings"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/logger"
)

// GrouperConfig tunes context group construction.
type GrouperConfig struct {
	// Group size bounds after deduplication.
	MinGroupSize int
	MaxGroupSize int

	// Document-local window around the anchor.
	LocalBefore int
	LocalAfter  int

	// Retrieved neighbour selection.
	TopK                 int
	MaxNeighbors         int
	SimilarityThreshold  float64
	RequireDomainOverlap bool

	// Anchor and neighbour filters. Empty lists allow everything.
	LanguagesAllowed      []string
	TrustLevelsAllowed    []string
	ContentTypesAllowed   []string
	ChunkRolesAllowed     []string
	ChunkRolesForbidden   []string
	MinAnchorContentChars int
}

// Grouper assembles bounded, deduplicated context groups around anchor
// chunks. The retriever may be nil; groups then contain only the
// document-local window.
type Grouper struct {
	retriever *Retriever
	cfg       GrouperConfig
}

// NewGrouper creates a grouper.
func NewGrouper(retriever *Retriever, cfg GrouperConfig) *Grouper {
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = 2
	}
	if cfg.MaxGroupSize < cfg.MinGroupSize {
		cfg.MaxGroupSize = cfg.MinGroupSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 16
	}
	return &Grouper{retriever: retriever, cfg: cfg}
}

// EligibleAnchor reports whether a chunk may anchor a group, and if not,
// the reason it was skipped.
func (g *Grouper) EligibleAnchor(c *domain.Chunk) (bool, string) {
	if c.Semantic == nil {
		return false, "not_annotated"
	}
	if c.Semantic.HasRole(domain.RoleStructural) {
		return false, "structural"
	}
	if len(strings.TrimSpace(c.Content)) < g.cfg.MinAnchorContentChars {
		return false, "content_too_short"
	}
	if langs := toSet(g.cfg.LanguagesAllowed); len(langs) > 0 && !langs[c.Language] {
		return false, "language_not_allowed"
	}
	if trusts := toSet(g.cfg.TrustLevelsAllowed); len(trusts) > 0 && !trusts[c.Semantic.TrustLevel] {
		return false, "trust_level_not_allowed"
	}
	if ctypes := toSet(g.cfg.ContentTypesAllowed); len(ctypes) > 0 && !intersects(c.Semantic.ContentType, ctypes) {
		return false, "content_type_not_allowed"
	}
	if allowed := toSet(g.cfg.ChunkRolesAllowed); len(allowed) > 0 && !intersects(c.Semantic.ChunkRole, allowed) {
		return false, "chunk_role_not_allowed"
	}
	if forbidden := toSet(g.cfg.ChunkRolesForbidden); len(forbidden) > 0 && intersects(c.Semantic.ChunkRole, forbidden) {
		return false, "chunk_role_forbidden"
	}
	return true, ""
}

// Build assembles the context group for the anchor at anchorIdx in its
// document's chunk slice. corpus resolves retrieved chunk IDs to full
// chunks across the whole workspace. Returns ErrGroupTooSmall when the
// group stays below the configured minimum after filtering.
func (g *Grouper) Build(anchorIdx int, fileChunks []domain.Chunk, corpus map[string]*domain.Chunk) (*domain.ContextGroup, error) {
	anchor := &fileChunks[anchorIdx]

	group := &domain.ContextGroup{
		AnchorChunkID: anchor.ChunkID,
		Members: []domain.GroupMember{
			{Chunk: *anchor, Origin: domain.OriginAnchor},
		},
	}
	seen := map[string]bool{anchor.ChunkID: true}

	add := func(m domain.GroupMember) bool {
		if len(group.Members) >= g.cfg.MaxGroupSize {
			return false
		}
		id := m.Chunk.ChunkID
		if id == "" || seen[id] {
			return true
		}
		seen[id] = true
		group.Members = append(group.Members, m)
		return true
	}

	// Document-local window first: adjacent chunks carry the derivation
	// the anchor sits in.
	for off := 1; off <= g.cfg.LocalBefore; off++ {
		i := anchorIdx - off
		if i < 0 {
			break
		}
		add(domain.GroupMember{Chunk: fileChunks[i], Origin: domain.OriginLocalBefore})
	}
	for off := 1; off <= g.cfg.LocalAfter; off++ {
		i := anchorIdx + off
		if i >= len(fileChunks) {
			break
		}
		add(domain.GroupMember{Chunk: fileChunks[i], Origin: domain.OriginLocalAfter})
	}

	for _, nb := range g.retrievedFor(anchor) {
		full, ok := corpus[nb.Entry.ChunkID]
		if !ok {
			logger.Debug("neighbor %s of %s not in corpus, skipping", nb.Entry.ChunkID, anchor.ChunkID)
			continue
		}
		if !add(domain.GroupMember{Chunk: *full, Origin: domain.OriginRetrieved, Score: nb.Score}) {
			break
		}
	}

	if len(group.Members) < g.cfg.MinGroupSize {
		return nil, fmt.Errorf("%w: %d members for anchor %s (min %d)",
			domain.ErrGroupTooSmall, len(group.Members), anchor.ChunkID, g.cfg.MinGroupSize)
	}
	return group, nil
}

// retrievedFor fetches and filters index neighbours for an anchor.
func (g *Grouper) retrievedFor(anchor *domain.Chunk) []Neighbor {
	if g.retriever == nil {
		return nil
	}
	raw, err := g.retriever.Neighbors(anchor.ChunkID, g.cfg.TopK, false)
	if err != nil {
		logger.Debug("no retrieved neighbors for %s: %v", anchor.ChunkID, err)
		return nil
	}

	langs := toSet(g.cfg.LanguagesAllowed)
	trusts := toSet(g.cfg.TrustLevelsAllowed)
	ctypes := toSet(g.cfg.ContentTypesAllowed)

	var kept []Neighbor
	for _, nb := range raw {
		if g.cfg.SimilarityThreshold != 0 && g.retriever.Better(g.cfg.SimilarityThreshold, nb.Score) {
			continue
		}
		if len(langs) > 0 && !langs[nb.Entry.Language] {
			continue
		}
		sem := nb.Entry.Semantic
		if sem != nil && sem.HasRole(domain.RoleStructural) {
			continue
		}
		if sem != nil {
			if len(trusts) > 0 && !trusts[sem.TrustLevel] {
				continue
			}
			if len(ctypes) > 0 && !intersects(sem.ContentType, ctypes) {
				continue
			}
		}
		if g.cfg.RequireDomainOverlap && !domainOverlap(anchor, nb.Entry) {
			continue
		}
		kept = append(kept, nb)
		if g.cfg.MaxNeighbors > 0 && len(kept) >= g.cfg.MaxNeighbors {
			break
		}
	}
	return kept
}

// domainOverlap reports whether the anchor and a neighbour share at least
// one domain label. Unlabelled chunks never overlap.
func domainOverlap(anchor *domain.Chunk, entry domain.IndexEntry) bool {
	if anchor.Semantic == nil || entry.Semantic == nil {
		return false
	}
	return intersects(entry.Semantic.Domain, toSet(anchor.Semantic.Domain))
}
