package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed defaults in the
// binary; file-backed stores let operators tune prompts without rebuilds.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible
	// default or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptAnnotateSystem constrains annotation output to strict JSON.
	// This prompt has no format placeholders.
	PromptAnnotateSystem = "annotate_system"

	// PromptAnnotateUser requests one semantic record for a chunk.
	// The template expects placeholders for the allowed label lists, the
	// chunk text and the optional context block.
	PromptAnnotateUser = "annotate_user"

	// PromptGenerateSystem constrains QA generation to a JSON array.
	// This prompt has no format placeholders.
	PromptGenerateSystem = "generate_system"

	// PromptGenerateUser requests question/answer pairs for a context group.
	// The template expects placeholders for the pair count, the language
	// and the rendered context blocks.
	PromptGenerateUser = "generate_user"
)
