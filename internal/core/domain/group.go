package domain

// MemberOrigin tags how a chunk entered a context group.
type MemberOrigin string

const (
	OriginAnchor      MemberOrigin = "anchor"
	OriginLocalBefore MemberOrigin = "local_before"
	OriginLocalAfter  MemberOrigin = "local_after"
	OriginRetrieved   MemberOrigin = "retrieved"
)

// GroupMember is one chunk inside a context group with its provenance.
// Retrieved members carry the raw index score; local members do not.
type GroupMember struct {
	Chunk  Chunk        `json:"chunk"`
	Origin MemberOrigin `json:"origin"`
	Score  float64      `json:"score,omitempty"`
}

// ContextGroup is a bounded, deduplicated set of chunks (anchor first)
// supplied together to the generative capability for multi-chunk question
// generation.
type ContextGroup struct {
	AnchorChunkID string        `json:"anchor_chunk_id"`
	Members       []GroupMember `json:"members"`
}

// ChunkIDs returns the member chunk IDs in group order.
func (g *ContextGroup) ChunkIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for i := range g.Members {
		ids = append(ids, g.Members[i].Chunk.ChunkID)
	}
	return ids
}

// DocIDs returns the distinct document IDs of the members, in group order.
func (g *ContextGroup) DocIDs() []string {
	seen := make(map[string]bool, len(g.Members))
	ids := make([]string, 0, len(g.Members))
	for i := range g.Members {
		id := g.Members[i].Chunk.DocID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
