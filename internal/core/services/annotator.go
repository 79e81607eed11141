package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/logger"
)

// Clip limits applied to validated model output.
const (
	maxContentTypes  = 2
	maxDomains       = 3
	maxArtifactRoles = 3
	maxChunkRoles    = 2
	maxSummaryChars  = 2000
	maxKeyFacts      = 10
	maxKeyQuantities = 10
	maxEquations     = 10
	maxTags          = 10
)

// AnnotatorConfig tunes the semantic annotation stage.
type AnnotatorConfig struct {
	// MaxChars caps the focus chunk text sent to the model.
	MaxChars int

	// MaxContextChars caps each local neighbour snippet.
	MaxContextChars int

	// UseLocalContext includes previous/next chunk snippets.
	UseLocalContext bool

	// UseRetrievedContext includes filtered index neighbours.
	UseRetrievedContext bool

	// RetrievedTopK neighbours are fetched, then filtered and capped to
	// RetrievedMax.
	RetrievedTopK int
	RetrievedMax  int

	// SimilarityThreshold drops retrieved neighbours whose raw score is
	// worse than the threshold under the index direction. Zero disables.
	SimilarityThreshold float64

	// Neighbour filters. Empty lists allow everything.
	LanguagesAllowed    []string
	TrustLevelsAllowed  []string
	ContentTypesAllowed []string

	// Resume skips chunks already annotated in the output file.
	Resume bool

	// Workers bounds file-level parallelism.
	Workers int

	// LogEvery emits a progress line after this many chunks of a file.
	// Zero disables progress logging.
	LogEvery int

	// Model call tuning.
	Temperature   float64
	MaxTokens     int
	MaxRetries    int
	RatePerSecond float64

	// Debug limits. Zero means unlimited.
	LimitFiles  int
	LimitChunks int
}

// Annotator fills the semantic block of content-bearing chunks via the
// generative capability, constrained by the taxonomy. Structural chunks
// are annotated deterministically and never reach the model.
type Annotator struct {
	caller    *modelCaller
	model     string
	prompts   driven.PromptStore
	taxonomy  *domain.Taxonomy
	prefilter *PreFilter
	retriever *Retriever
	cfg       AnnotatorConfig
}

// NewAnnotator creates an annotator. retriever may be nil, in which case
// retrieved context is disabled regardless of configuration.
func NewAnnotator(
	llm driven.LLMService,
	prompts driven.PromptStore,
	taxonomy *domain.Taxonomy,
	prefilter *PreFilter,
	retriever *Retriever,
	cfg AnnotatorConfig,
) *Annotator {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 4000
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 800
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if retriever == nil {
		cfg.UseRetrievedContext = false
	}
	return &Annotator{
		caller:    newModelCaller(llm, cfg.RatePerSecond, cfg.MaxRetries),
		model:     llm.ModelName(),
		prompts:   prompts,
		taxonomy:  taxonomy,
		prefilter: prefilter,
		retriever: retriever,
		cfg:       cfg,
	}
}

// AnnotateResult summarises an annotation run.
type AnnotateResult struct {
	Files      int
	Chunks     int
	Annotated  int
	Structural int
	Fallback   int
	Skipped    int
}

// Run annotates every chunk file from in and writes the enriched files to
// out. Files are processed in parallel; chunks within a file stay
// sequential because local context needs document order.
func (a *Annotator) Run(ctx context.Context, in, out driven.ChunkStore) (AnnotateResult, error) {
	files, err := in.Files()
	if err != nil {
		return AnnotateResult{}, fmt.Errorf("list chunk files: %w", err)
	}
	if a.cfg.LimitFiles > 0 && len(files) > a.cfg.LimitFiles {
		files = files[:a.cfg.LimitFiles]
	}

	var mu sync.Mutex
	var total AnnotateResult

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			res, err := a.annotateFile(ctx, file, in, out)
			if err != nil {
				return fmt.Errorf("annotate %s: %w", file, err)
			}
			mu.Lock()
			total.Files++
			total.Chunks += res.Chunks
			total.Annotated += res.Annotated
			total.Structural += res.Structural
			total.Fallback += res.Fallback
			total.Skipped += res.Skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func (a *Annotator) annotateFile(ctx context.Context, file string, in, out driven.ChunkStore) (AnnotateResult, error) {
	var res AnnotateResult

	chunks, err := in.Read(file)
	if err != nil {
		return res, err
	}
	if a.cfg.LimitChunks > 0 && len(chunks) > a.cfg.LimitChunks {
		chunks = chunks[:a.cfg.LimitChunks]
	}

	existing := map[string]domain.Chunk{}
	if a.cfg.Resume {
		existing, err = a.existingAnnotations(file, out)
		if err != nil {
			return res, err
		}
	}

	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		c := &chunks[i]
		res.Chunks++
		if a.cfg.LogEvery > 0 && res.Chunks%a.cfg.LogEvery == 0 {
			logger.Info("%s: %d/%d chunks", file, res.Chunks, len(chunks))
		}

		if prev, ok := existing[c.ChunkID]; ok && prev.Annotated() {
			chunks[i] = prev
			res.Skipped++
			continue
		}

		if a.prefilter.IsStructural(c) {
			a.prefilter.Annotate(c)
			res.Structural++
			continue
		}

		var prevText, nextText string
		if a.cfg.UseLocalContext {
			if i > 0 {
				prevText = chunks[i-1].Content
			}
			if i+1 < len(chunks) {
				nextText = chunks[i+1].Content
			}
		}

		if err := a.annotateChunk(ctx, c, prevText, nextText); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			logger.Warn("chunk %s (%s): %v; writing fallback annotation", c.ChunkID, file, err)
			a.fallbackAnnotate(c)
			res.Fallback++
			continue
		}
		res.Annotated++
	}

	if err := out.Write(file, chunks); err != nil {
		return res, err
	}
	logger.Info("annotated %s: %d model, %d structural, %d fallback, %d resumed",
		file, res.Annotated, res.Structural, res.Fallback, res.Skipped)
	return res, nil
}

// existingAnnotations loads the output file from a previous run, if any.
func (a *Annotator) existingAnnotations(file string, out driven.ChunkStore) (map[string]domain.Chunk, error) {
	prev, err := out.Read(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]domain.Chunk{}, nil
		}
		return nil, err
	}
	byID := make(map[string]domain.Chunk, len(prev))
	for _, c := range prev {
		byID[c.ChunkID] = c
	}
	return byID, nil
}

// semanticReply is the strict annotation schema expected from the model.
type semanticReply struct {
	Language      string   `json:"language"`
	ContentType   flexList `json:"content_type"`
	Domain        flexList `json:"domain"`
	ArtifactRole  flexList `json:"artifact_role"`
	TrustLevel    string   `json:"trust_level"`
	ChunkRole     flexList `json:"chunk_role"`
	Summary       string   `json:"summary"`
	KeyFacts      flexList `json:"key_facts"`
	KeyQuantities flexList `json:"key_quantities"`
	Equations     flexList `json:"equations"`
	Tags          flexList `json:"tags"`
}

func (a *Annotator) annotateChunk(ctx context.Context, c *domain.Chunk, prevText, nextText string) error {
	neighbors, err := a.retrievedNeighbors(c)
	if err != nil {
		// Degrade to local context only; retrieval problems must not
		// block annotation.
		logger.Debug("retrieval for %s unavailable: %v", c.ChunkID, err)
		neighbors = nil
	}

	system, user, err := a.buildPrompt(c, prevText, nextText, neighbors)
	if err != nil {
		return err
	}

	reply, err := a.caller.chat(ctx, system, user, driven.ChatOptions{
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		return err
	}

	raw, err := extractJSONObject(reply)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrMalformedResponse, headChars(reply, 200))
	}
	var parsed semanticReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	a.apply(c, &parsed, prevText != "" || nextText != "", neighbors)
	return nil
}

// retrievedNeighbors fetches, filters and caps index neighbours for the
// chunk. Returns nil when retrieved context is disabled.
func (a *Annotator) retrievedNeighbors(c *domain.Chunk) ([]Neighbor, error) {
	if !a.cfg.UseRetrievedContext {
		return nil, nil
	}
	topK := a.cfg.RetrievedTopK
	if topK <= 0 {
		topK = 8
	}
	raw, err := a.retriever.Neighbors(c.ChunkID, topK, false)
	if err != nil {
		return nil, err
	}

	langs := toSet(a.cfg.LanguagesAllowed)
	trusts := toSet(a.cfg.TrustLevelsAllowed)
	ctypes := toSet(a.cfg.ContentTypesAllowed)

	var kept []Neighbor
	for _, nb := range raw {
		if a.cfg.SimilarityThreshold != 0 && a.retriever.Better(a.cfg.SimilarityThreshold, nb.Score) {
			continue
		}
		if len(langs) > 0 && !langs[nb.Entry.Language] {
			continue
		}
		if nb.Entry.Semantic != nil {
			if len(trusts) > 0 && !trusts[nb.Entry.Semantic.TrustLevel] {
				continue
			}
			if len(ctypes) > 0 && !intersects(nb.Entry.Semantic.ContentType, ctypes) {
				continue
			}
		}
		kept = append(kept, nb)
		if a.cfg.RetrievedMax > 0 && len(kept) >= a.cfg.RetrievedMax {
			break
		}
	}
	return kept, nil
}

func (a *Annotator) buildPrompt(c *domain.Chunk, prevText, nextText string, neighbors []Neighbor) (system, user string, err error) {
	system, err = a.prompts.Load(driven.PromptAnnotateSystem)
	if err != nil {
		return "", "", fmt.Errorf("load system prompt: %w", err)
	}
	template, err := a.prompts.Load(driven.PromptAnnotateUser)
	if err != nil {
		return "", "", fmt.Errorf("load user prompt: %w", err)
	}

	focus := headChars(c.Content, a.cfg.MaxChars)

	var before string
	if prevText != "" {
		before = fmt.Sprintf("CONTEXT_BEFORE (previous chunk):\n\"\"\"%s\"\"\"\n\n",
			tailChars(prevText, a.cfg.MaxContextChars))
	}

	var after strings.Builder
	if nextText != "" {
		fmt.Fprintf(&after, "CONTEXT_AFTER (next chunk):\n\"\"\"%s\"\"\"\n\n",
			headChars(nextText, a.cfg.MaxContextChars))
	}
	if len(neighbors) > 0 {
		after.WriteString("RETRIEVED_CONTEXT (similar chunks from the corpus):\n")
		for _, nb := range neighbors {
			fmt.Fprintf(&after, "- [%s] %s\n", nb.Entry.ChunkID,
				headChars(neighborText(nb.Entry), a.cfg.MaxContextChars))
		}
		after.WriteString("\n")
	}

	title := c.Title
	if title == "" {
		title = c.DocID
	}

	user = fmt.Sprintf(template,
		title,
		before,
		focus,
		after.String(),
		taxonomyBlock(a.taxonomy.ContentTypes),
		taxonomyBlock(a.taxonomy.Domains),
		taxonomyBlock(a.taxonomy.ArtifactRoles),
		taxonomyBlock(a.taxonomy.TrustLevels),
		taxonomyBlock(a.taxonomy.ChunkRoles),
	)
	return system, user, nil
}

// apply validates the model reply against the taxonomy, merges it with
// the structural heuristics and records per-field empty reasons.
func (a *Annotator) apply(c *domain.Chunk, r *semanticReply, usedLocal bool, neighbors []Neighbor) {
	emptyReasons := map[string]string{}

	clip := func(field string, values flexList, allowed []domain.TaxonomyEntry, max int) []string {
		kept, filtered := domain.ClipLabels(values, allowed, max)
		if len(kept) == 0 {
			if filtered {
				emptyReasons[field] = domain.EmptyReasonTaxonomy
			} else {
				emptyReasons[field] = domain.EmptyReasonModel
			}
		}
		return kept
	}

	sem := &domain.Semantic{
		ContentType:  clip("content_type", r.ContentType, a.taxonomy.ContentTypes, maxContentTypes),
		Domain:       clip("domain", r.Domain, a.taxonomy.Domains, maxDomains),
		ArtifactRole: clip("artifact_role", r.ArtifactRole, a.taxonomy.ArtifactRoles, maxArtifactRoles),
		ChunkRole:    clip("chunk_role", r.ChunkRole, a.taxonomy.ChunkRoles, maxChunkRoles),
	}

	trust := strings.TrimSpace(r.TrustLevel)
	if !a.taxonomy.ValidTrust(trust) {
		if trust != "" {
			logger.Debug("chunk %s: unknown trust level %q, using default", c.ChunkID, trust)
		}
		trust = a.taxonomy.DefaultTrust()
	}
	sem.TrustLevel = trust

	sem.Summary = headChars(strings.TrimSpace(r.Summary), maxSummaryChars)
	if sem.Summary == "" {
		emptyReasons["summary"] = domain.EmptyReasonModel
	}

	sem.KeyFacts = trimList(r.KeyFacts, maxKeyFacts)
	if len(sem.KeyFacts) == 0 {
		emptyReasons["key_facts"] = domain.EmptyReasonModel
	}
	sem.KeyQuantities = trimList(r.KeyQuantities, maxKeyQuantities)
	sem.Equations = trimList(r.Equations, maxEquations)
	sem.Tags = trimList(r.Tags, maxTags)
	if len(sem.Tags) == 0 {
		emptyReasons["tags"] = domain.EmptyReasonModel
	}

	// Structural flags add roles, never replace the model's labels.
	if c.Meta.HasHeading && !containsString(sem.ChunkRole, domain.RoleHeading) {
		sem.ChunkRole = append(sem.ChunkRole, domain.RoleHeading)
		delete(emptyReasons, "chunk_role")
	}
	if c.Meta.HasTable && !containsString(sem.ChunkRole, domain.RoleTable) {
		sem.ChunkRole = append(sem.ChunkRole, domain.RoleTable)
		delete(emptyReasons, "chunk_role")
	}

	// A heading or table never gets a prose summary, whatever the model
	// said: leakage of caption text into summaries poisons generation.
	if containsString(sem.ChunkRole, domain.RoleHeading) ||
		containsString(sem.ChunkRole, domain.RoleTable) ||
		len(strings.TrimSpace(c.Content)) < a.prefilter.minContentChars {
		if sem.Summary != "" {
			sem.Summary = ""
			emptyReasons["summary"] = domain.EmptyReasonRule
		}
	}

	lang := strings.ToLower(strings.TrimSpace(r.Language))
	switch lang {
	case "de", "en", "mixed":
	default:
		lang = domain.LanguageUnknown
	}
	if c.Language == "" || c.Language == domain.LanguageUnknown {
		c.Language = lang
	}

	neighborIDs := make([]string, 0, len(neighbors))
	for _, nb := range neighbors {
		neighborIDs = append(neighborIDs, nb.Entry.ChunkID)
	}

	sem.Provenance = domain.Provenance{
		Mode:                 domain.ProvenanceModel,
		Model:                a.model,
		UsedLocalContext:     usedLocal,
		UsedRetrievedContext: len(neighbors) > 0,
		NeighborChunkIDs:     neighborIDs,
		EmptyReasons:         emptyReasons,
		AnnotatedAt:          time.Now().UTC(),
	}
	c.Semantic = sem
}

// fallbackAnnotate marks a chunk whose model annotation failed for good.
// The chunk stays in the corpus with an honest empty annotation instead
// of blocking the file.
func (a *Annotator) fallbackAnnotate(c *domain.Chunk) {
	if c.Language == "" {
		c.Language = domain.LanguageUnknown
	}
	c.Semantic = &domain.Semantic{
		ContentType:  []string{},
		Domain:       []string{},
		ArtifactRole: []string{},
		ChunkRole:    []string{},
		TrustLevel:   a.taxonomy.LowestTrust(),
		Provenance: domain.Provenance{
			Mode: domain.ProvenanceRuleFallback,
			EmptyReasons: map[string]string{
				"content_type":  domain.EmptyReasonModel,
				"domain":        domain.EmptyReasonModel,
				"artifact_role": domain.EmptyReasonModel,
				"chunk_role":    domain.EmptyReasonModel,
				"summary":       domain.EmptyReasonModel,
				"key_facts":     domain.EmptyReasonModel,
				"tags":          domain.EmptyReasonModel,
			},
			AnnotatedAt: time.Now().UTC(),
		},
	}
}

// taxonomyBlock renders taxonomy entries for the prompt.
func taxonomyBlock(entries []domain.TaxonomyEntry) string {
	var b strings.Builder
	for _, e := range entries {
		switch {
		case e.Label != "" && e.Description != "":
			fmt.Fprintf(&b, "- %q: %s - %s\n", e.ID, e.Label, e.Description)
		case e.Label != "":
			fmt.Fprintf(&b, "- %q: %s\n", e.ID, e.Label)
		default:
			fmt.Fprintf(&b, "- %q\n", e.ID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// neighborText prefers the annotated summary over raw content when
// rendering a retrieved neighbour.
func neighborText(e domain.IndexEntry) string {
	if e.Semantic != nil && strings.TrimSpace(e.Semantic.Summary) != "" {
		return e.Semantic.Summary
	}
	return e.ChunkID
}

func trimList(values []string, max int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = true
		}
	}
	return set
}

func intersects(values []string, set map[string]bool) bool {
	for _, v := range values {
		if set[v] {
			return true
		}
	}
	return false
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
