package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dachslabs/qaforge/internal/core/domain"
	"github.com/dachslabs/qaforge/internal/core/ports/driven"
	"github.com/dachslabs/qaforge/internal/logger"
)

// GeneratorConfig tunes candidate generation.
type GeneratorConfig struct {
	// Sampling caps. Zero means unlimited.
	MaxQAPerGroup    int
	MaxQAPerDocument int
	GlobalQALimit    int

	// ContextCharsPerChunk caps each rendered context block.
	ContextCharsPerChunk int

	// Resume skips anchors already present in the output file.
	Resume bool

	// Workers bounds file-level parallelism.
	Workers int

	// LogEvery emits a progress line after this many anchors of a file.
	// Zero disables progress logging.
	LogEvery int

	// Model call tuning.
	Temperature   float64
	TopP          float64
	MaxTokens     int
	MaxRetries    int
	RatePerSecond float64

	// Debug limits. Zero means unlimited.
	LimitFiles  int
	LimitChunks int
}

// Generator turns context groups into question/answer candidates via the
// generative capability. Output is append-only per document so an
// interrupted run loses at most the group in flight.
type Generator struct {
	caller  *modelCaller
	model   string
	prompts driven.PromptStore
	grouper *Grouper
	cfg     GeneratorConfig
}

// NewGenerator creates a generator.
func NewGenerator(llm driven.LLMService, prompts driven.PromptStore, grouper *Grouper, cfg GeneratorConfig) *Generator {
	if cfg.MaxQAPerGroup <= 0 {
		cfg.MaxQAPerGroup = 3
	}
	if cfg.ContextCharsPerChunk <= 0 {
		cfg.ContextCharsPerChunk = 1500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Generator{
		caller:  newModelCaller(llm, cfg.RatePerSecond, cfg.MaxRetries),
		model:   llm.ModelName(),
		prompts: prompts,
		grouper: grouper,
		cfg:     cfg,
	}
}

// GenerateResult summarises a generation run.
type GenerateResult struct {
	Files        int
	Anchors      int
	Groups       int
	Candidates   int
	SkippedSmall int
	Ineligible   int
	Resumed      int
	Failures     int
}

// qaItem is the strict per-pair schema expected from the model.
type qaItem struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"`
}

// Run generates candidates for every annotated chunk file. The whole
// corpus is loaded first so retrieved group members resolve to full
// chunks across document boundaries.
func (g *Generator) Run(ctx context.Context, chunks driven.ChunkStore, candidates driven.CandidateStore) (GenerateResult, error) {
	files, err := chunks.Files()
	if err != nil {
		return GenerateResult{}, fmt.Errorf("list chunk files: %w", err)
	}
	if g.cfg.LimitFiles > 0 && len(files) > g.cfg.LimitFiles {
		files = files[:g.cfg.LimitFiles]
	}

	byFile := make(map[string][]domain.Chunk, len(files))
	corpus := make(map[string]*domain.Chunk)
	for _, file := range files {
		cs, err := chunks.Read(file)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("read %s: %w", file, err)
		}
		byFile[file] = cs
		for i := range cs {
			corpus[cs[i].ChunkID] = &cs[i]
		}
	}

	var mu sync.Mutex
	var total GenerateResult
	globalCount := 0

	// reserve claims budget under the global cap. Returns false once the
	// cap is exhausted.
	reserve := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if g.cfg.GlobalQALimit > 0 && globalCount >= g.cfg.GlobalQALimit {
			return false
		}
		globalCount++
		return true
	}
	release := func() {
		mu.Lock()
		globalCount--
		mu.Unlock()
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.Workers)
	for _, file := range files {
		file := file
		grp.Go(func() error {
			res, err := g.generateFile(ctx, file, byFile[file], corpus, candidates, reserve, release)
			if err != nil {
				return fmt.Errorf("generate %s: %w", file, err)
			}
			mu.Lock()
			total.Files++
			total.Anchors += res.Anchors
			total.Groups += res.Groups
			total.Candidates += res.Candidates
			total.SkippedSmall += res.SkippedSmall
			total.Ineligible += res.Ineligible
			total.Resumed += res.Resumed
			total.Failures += res.Failures
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func (g *Generator) generateFile(
	ctx context.Context,
	file string,
	fileChunks []domain.Chunk,
	corpus map[string]*domain.Chunk,
	store driven.CandidateStore,
	reserve func() bool,
	release func(),
) (GenerateResult, error) {
	var res GenerateResult

	if g.cfg.LimitChunks > 0 && len(fileChunks) > g.cfg.LimitChunks {
		fileChunks = fileChunks[:g.cfg.LimitChunks]
	}

	var doneAnchors map[string]bool
	docCount := 0
	if g.cfg.Resume {
		var err error
		doneAnchors, err = store.ExistingAnchors(file)
		if err != nil {
			return res, err
		}
		existing, err := store.Read(file)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, err
		}
		docCount = len(existing)
	}

	writer, err := store.OpenAppend(file)
	if err != nil {
		return res, err
	}
	defer writer.Close()

	for i := range fileChunks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		anchor := &fileChunks[i]
		if g.cfg.LogEvery > 0 && (i+1)%g.cfg.LogEvery == 0 {
			logger.Info("%s: %d/%d anchors", file, i+1, len(fileChunks))
		}

		if ok, reason := g.grouper.EligibleAnchor(anchor); !ok {
			logger.Debug("skip anchor %s: %s", anchor.ChunkID, reason)
			res.Ineligible++
			continue
		}
		res.Anchors++

		if doneAnchors[anchor.ChunkID] {
			res.Resumed++
			continue
		}
		if g.cfg.MaxQAPerDocument > 0 && docCount >= g.cfg.MaxQAPerDocument {
			logger.Debug("document cap reached in %s, stopping at %s", file, anchor.ChunkID)
			break
		}

		group, err := g.grouper.Build(i, fileChunks, corpus)
		if err != nil {
			if errors.Is(err, domain.ErrGroupTooSmall) {
				logger.Debug("skip anchor %s: %v", anchor.ChunkID, err)
				res.SkippedSmall++
				continue
			}
			return res, err
		}
		res.Groups++

		items, err := g.generateGroup(ctx, group)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			logger.Warn("anchor %s (%s): generation failed, skipping group: %v", anchor.ChunkID, file, err)
			res.Failures++
			continue
		}

		for _, item := range items {
			if g.cfg.MaxQAPerDocument > 0 && docCount >= g.cfg.MaxQAPerDocument {
				break
			}
			if !reserve() {
				logger.Info("global candidate limit reached")
				return res, nil
			}
			cand := g.toCandidate(anchor, group, item, file)
			if err := writer.Append(cand); err != nil {
				release()
				return res, err
			}
			docCount++
			res.Candidates++
		}
	}
	logger.Info("generated %s: %d candidates from %d groups (%d ineligible, %d too small, %d failed)",
		file, res.Candidates, res.Groups, res.Ineligible, res.SkippedSmall, res.Failures)
	return res, nil
}

// generateGroup renders the group into a prompt, calls the model and
// parses the reply. An empty array is a valid "nothing worth asking".
func (g *Generator) generateGroup(ctx context.Context, group *domain.ContextGroup) ([]qaItem, error) {
	system, err := g.prompts.Load(driven.PromptGenerateSystem)
	if err != nil {
		return nil, fmt.Errorf("load system prompt: %w", err)
	}
	template, err := g.prompts.Load(driven.PromptGenerateUser)
	if err != nil {
		return nil, fmt.Errorf("load user prompt: %w", err)
	}

	language := group.Members[0].Chunk.Language
	if language == "" {
		language = domain.LanguageUnknown
	}
	user := fmt.Sprintf(template, g.cfg.MaxQAPerGroup, language, g.renderContext(group))

	reply, err := g.caller.chat(ctx, system, user, driven.ChatOptions{
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
	})
	if err != nil {
		return nil, err
	}

	raw, err := extractJSONArray(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedResponse, headChars(reply, 200))
	}
	var items []qaItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	kept := make([]qaItem, 0, len(items))
	for _, item := range items {
		item.Question = strings.TrimSpace(item.Question)
		item.Answer = strings.TrimSpace(item.Answer)
		if item.Question == "" || item.Answer == "" {
			continue
		}
		if !domain.ValidDifficulty(item.Difficulty) {
			item.Difficulty = domain.DifficultyUnknown
		}
		kept = append(kept, item)
		if len(kept) == g.cfg.MaxQAPerGroup {
			break
		}
	}
	return kept, nil
}

// renderContext builds the labelled context blocks, preferring annotated
// summaries over raw content and capping each block.
func (g *Generator) renderContext(group *domain.ContextGroup) string {
	var b strings.Builder
	for i := range group.Members {
		m := &group.Members[i]
		text := m.Chunk.Content
		if m.Chunk.Semantic != nil && strings.TrimSpace(m.Chunk.Semantic.Summary) != "" {
			text = m.Chunk.Semantic.Summary
		}
		fmt.Fprintf(&b, "[%s | %s]\n%s\n\n",
			m.Chunk.ChunkID, m.Origin, headChars(strings.TrimSpace(text), g.cfg.ContextCharsPerChunk))
	}
	return strings.TrimRight(b.String(), "\n")
}

// toCandidate maps one parsed pair to a candidate record with semantic
// tags inherited from the anchor.
func (g *Generator) toCandidate(anchor *domain.Chunk, group *domain.ContextGroup, item qaItem, file string) domain.Candidate {
	cand := domain.Candidate{
		ID:            candidateID(anchor.ChunkID, item.Question, item.Answer),
		AnchorChunkID: anchor.ChunkID,
		AnchorDocID:   anchor.DocID,
		SourceChunks:  group.ChunkIDs(),
		DocIDs:        group.DocIDs(),
		Question:      item.Question,
		Answer:        item.Answer,
		Difficulty:    item.Difficulty,
		Language:      anchor.Language,
		WorkspaceFile: file,
	}
	if anchor.Semantic != nil {
		cand.ContentType = anchor.Semantic.ContentType
		cand.Domain = anchor.Semantic.Domain
		cand.TrustLevel = anchor.Semantic.TrustLevel
	}
	return cand
}

// candidateID derives a stable content hash so re-runs never collide
// with earlier output for the same pair.
func candidateID(anchorID, question, answer string) string {
	h := sha1.Sum([]byte(anchorID + "\n" + question + "\n" + answer))
	return "qa_" + hex.EncodeToString(h[:])[:16]
}
