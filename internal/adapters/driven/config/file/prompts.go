package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dachslabs/qaforge/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads LLM prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to
// embedded defaults.
//
// Files are only created on first access, not in the constructor, which
// keeps tests free of unexpected I/O.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts. These are used when
// user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptAnnotateSystem: `You are a precise classifier and summarizer for technical documents.
Your job is to:
  (1) assign semantic labels from a fixed taxonomy and
  (2) extract a short technical summary and key facts for Q&A generation.

You MAY use CONTEXT_BEFORE, CONTEXT_AFTER and RETRIEVED_CONTEXT to better understand the position of the focus chunk in a derivation or section, but you MUST classify only the FOCUS_CHUNK.

If the FOCUS_CHUNK carries no real informational content (a bare heading, a figure or table caption, a page fragment), return empty lists, language "unknown", the lowest trust level and an empty summary.

You MUST respond with a single JSON object only. No explanations, no markdown, no surrounding text.`,

	driven.PromptAnnotateUser: `We have a FOCUS_CHUNK from a larger document.

Document title: "%s"

%sFOCUS_CHUNK (this is what you must classify and summarize):
"""%s"""

%sTASK 1: CLASSIFICATION

Classify this FOCUS_CHUNK according to the following taxonomy. Use ONLY IDs from the lists.

Allowed values:

1) language (free choice, not from taxonomy):
   - "de"      : German
   - "en"      : English
   - "mixed"   : clearly mixed German/English
   - "unknown" : cannot be determined

2) content_type (0-2 items from this list):
%s

3) domain (0-3 items from this list):
%s

4) artifact_role (0-3 items from this list):
%s

5) trust_level (exactly ONE item from this list):
%s

6) chunk_role (0-2 items from this list):
%s

TASK 2: SEMANTIC ENRICHMENT FOR Q&A

Based on the same FOCUS_CHUNK:

7) summary: a short technical summary (1-3 sentences) of the main idea, not page layout or file paths.

8) key_facts: a list of 3-8 short self-contained statements or formulas usable for technical Q&A.

9) key_quantities: named quantities with symbols/units mentioned in the text (empty list if none).

10) equations: equations or formulas quoted from the text (empty list if none).

11) tags: 2-6 short topic tags (free text, not from taxonomy), concise technical phrases in English.

OUTPUT FORMAT (STRICT):

Return EXACTLY one JSON object with keys:
  "language": string,
  "content_type": list of strings,
  "domain": list of strings,
  "artifact_role": list of strings,
  "trust_level": string,
  "chunk_role": list of strings,
  "summary": string,
  "key_facts": list of strings,
  "key_quantities": list of strings,
  "equations": list of strings,
  "tags": list of strings

Now produce the JSON classification and enrichment for the FOCUS_CHUNK.`,

	driven.PromptGenerateSystem: `You are a careful author of technical question/answer pairs for instruction tuning.

Rules:
- Every answer MUST be fully grounded in the provided context blocks. Never invent facts.
- If the context does not support any good question, return an empty JSON array [].
- Do not produce near-duplicate questions within one response.
- Answers should be self-contained and technically precise.

You MUST respond with a single JSON array only. No explanations, no markdown, no surrounding text.`,

	driven.PromptGenerateUser: `Create up to %d question/answer pairs in language "%s" from the following context.

CONTEXT BLOCKS:
%s

Each pair must be answerable from the context alone.

OUTPUT FORMAT (STRICT):

Return EXACTLY one JSON array of objects with keys:
  "question": string,
  "answer": string,
  "difficulty": "basic" | "intermediate" | "advanced"

Return [] if no grounded pair can be produced.`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.qaforge/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".qaforge", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default
// files. Falls back to the embedded default if the file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	if err != nil {
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Double-check so a concurrent load wins consistently.
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once on first Load().
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
