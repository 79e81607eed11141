package domain

import "time"

// LanguageUnknown is the language tag for chunks whose language could not
// be determined. Structural chunks always carry it.
const LanguageUnknown = "unknown"

// Chunk is the atomic unit of annotation and retrieval: a bounded span of
// normalised document text plus structural and semantic metadata.
// Chunks are produced by an external normaliser; the pipeline never
// creates them, it only fills in the semantic block.
type Chunk struct {
	// DocID identifies the source document.
	DocID string `json:"doc_id"`

	// ChunkID is globally unique within the working corpus. It is the only
	// key used to cross-reference a chunk from any other artifact.
	ChunkID string `json:"chunk_id"`

	// SourceType describes the original format (pdf, slides, code, ...).
	SourceType string `json:"source_type,omitempty"`

	// SourcePath is the source location relative to the corpus root.
	SourcePath string `json:"source_path,omitempty"`

	// Title is the human-readable document title.
	Title string `json:"title,omitempty"`

	// Language is the primary language tag (de/en/mixed/unknown).
	Language string `json:"language,omitempty"`

	// Content is the normalised chunk text.
	Content string `json:"content"`

	// Meta carries structural metadata from the normaliser.
	Meta ChunkMeta `json:"meta,omitempty"`

	// Semantic is the annotation block. Nil until the pre-filter or the
	// annotator has populated it.
	Semantic *Semantic `json:"semantic,omitempty"`
}

// Annotated reports whether the chunk already carries an annotation with
// recorded provenance. Used as the sole resume check during annotation.
func (c *Chunk) Annotated() bool {
	return c.Semantic != nil && c.Semantic.Provenance.Mode != ""
}

// ChunkMeta holds positional and structural metadata for a chunk.
type ChunkMeta struct {
	// PageStart and PageEnd bound the chunk's page range (0-based, inclusive).
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`

	// NumPages is the total page count of the source document.
	NumPages int `json:"num_pages,omitempty"`

	// Section is the section identifier if the normaliser detected one.
	Section string `json:"section,omitempty"`

	// HasHeading is true if the chunk contains a heading line.
	HasHeading bool `json:"has_heading,omitempty"`

	// HasTable is true if the chunk contains tabular content.
	HasTable bool `json:"has_table,omitempty"`

	// HasFormula is true if the chunk contains a formula or equation.
	HasFormula bool `json:"has_formula,omitempty"`
}

// Semantic is the taxonomy-constrained annotation block of a chunk.
// All label lists contain taxonomy IDs only; free-text enrichment lives in
// Summary, KeyFacts and Tags.
type Semantic struct {
	// ContentType classifies the source material (textbook, paper, ...).
	ContentType []string `json:"content_type"`

	// Domain lists subject areas (thermodynamics, hpc, ...).
	Domain []string `json:"domain"`

	// ArtifactRole describes the function of the source artifact.
	ArtifactRole []string `json:"artifact_role"`

	// ChunkRole describes the pedagogical role of the chunk itself
	// (definition, derivation, example, structural, heading, table, ...).
	ChunkRole []string `json:"chunk_role"`

	// TrustLevel is a single taxonomy ID rating source reliability.
	TrustLevel string `json:"trust_level"`

	// Summary is a short technical summary of the chunk content.
	Summary string `json:"summary"`

	// KeyFacts lists self-contained statements usable for Q&A generation.
	KeyFacts []string `json:"key_facts,omitempty"`

	// KeyQuantities lists extracted parameters and values.
	KeyQuantities []string `json:"key_quantities,omitempty"`

	// Equations lists extracted formulas.
	Equations []string `json:"equations,omitempty"`

	// Tags holds free-text topic tags (not taxonomy-constrained).
	Tags []string `json:"tags,omitempty"`

	// Provenance records how this annotation was produced.
	Provenance Provenance `json:"provenance"`
}

// HasRole reports whether the semantic block carries the given chunk role.
func (s *Semantic) HasRole(role string) bool {
	for _, r := range s.ChunkRole {
		if r == role {
			return true
		}
	}
	return false
}

// Annotation provenance modes. A mode of the form "rule:<id>" identifies a
// deterministic rule; ProvenanceModel identifies a model call.
const (
	ProvenanceModel          = "model"
	ProvenanceRuleStructural = "rule:structural"
	ProvenanceRuleFallback   = "rule:fallback"
)

// Reasons recorded per empty semantic field.
const (
	// EmptyReasonModel: the model produced nothing for the field.
	EmptyReasonModel = "model_empty"

	// EmptyReasonTaxonomy: model output existed but no value survived
	// validation against the taxonomy.
	EmptyReasonTaxonomy = "taxonomy_filtered"

	// EmptyReasonRule: a deterministic rule suppressed the field.
	EmptyReasonRule = "rule_suppressed"
)

// Well-known chunk roles assigned by deterministic rules.
const (
	RoleStructural = "structural"
	RoleHeading    = "heading"
	RoleTable      = "table"
)

// Provenance records how a derived annotation was produced, so any output
// can be traced back to the rule or model call behind it.
type Provenance struct {
	// Mode is ProvenanceModel or a "rule:<id>" identifier.
	Mode string `json:"mode"`

	// Model names the generative model when Mode is ProvenanceModel.
	Model string `json:"model,omitempty"`

	// UsedLocalContext is true if document-local neighbours were supplied.
	UsedLocalContext bool `json:"used_local_context,omitempty"`

	// UsedRetrievedContext is true if index neighbours were supplied.
	UsedRetrievedContext bool `json:"used_retrieved_context,omitempty"`

	// NeighborChunkIDs lists the neighbour chunks actually used.
	NeighborChunkIDs []string `json:"neighbor_chunk_ids,omitempty"`

	// EmptyReasons maps each empty field name to the reason it is empty.
	EmptyReasons map[string]string `json:"empty_reasons,omitempty"`

	// AnnotatedAt is when the annotation was produced. Structural rule
	// annotations leave it zero so re-running the deterministic
	// pre-filter never rewrites records.
	AnnotatedAt time.Time `json:"annotated_at,omitzero"`
}
