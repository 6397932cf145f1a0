package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return the built-in
	// default or an error when none exists.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names. Templates use Go fmt verbs with explicit argument
// indexes so user edits may reorder them.
const (
	// PromptQueryGeneration turns an email into a knowledge base query.
	// Arguments: %[1]s subject, %[2]s body.
	PromptQueryGeneration = "query_generation"

	// PromptKnowledgeSynthesis condenses retrieved chunks.
	// Arguments: %[1]s query, %[2]s search results.
	PromptKnowledgeSynthesis = "knowledge_synthesis"

	// PromptContextSummary summarises the conversation context of an email.
	// Arguments: %[1]s subject, %[2]s body.
	PromptContextSummary = "context_summary"

	// PromptDrafting writes the four-section draft.
	// Arguments: %[1]s assistant address, %[2]s subject, %[3]s body,
	// %[4]s sender, %[5]s knowledge summary, %[6]s history digest,
	// %[7]s context summary.
	PromptDrafting = "drafting"

	// PromptFinalReview refines the draft.
	// Arguments: %[1]s query, %[2]s initial draft.
	PromptFinalReview = "final_review"

	// PromptSummarise creates a short summary of one email body.
	// Arguments: %[1]d max length in words, %[2]s content.
	PromptSummarise = "summarise"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service should use its built-in default prompts.
	SetPromptStore(store PromptStore)
}
