package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Unknown names return an error.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names.
const (
	// PromptChatSystem is the system instruction for answering questions.
	// It has no format placeholders.
	PromptChatSystem = "chat_system"

	// PromptNoEvidence replaces the evidence block when retrieval returned nothing.
	PromptNoEvidence = "no_evidence"
)
