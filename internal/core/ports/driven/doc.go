// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - TextExtractor: Turns PDF bytes into plain text
//   - PostProcessor: Splits and annotates extracted text into chunks
//   - EmbeddingService: Generates vector embeddings
//   - LLMService: Produces the answer completion
//   - VectorStore: Documents, chunks and similarity search
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ConversationStore: Durable session history. Without it, history lives in memory only.
//   - PromptStore: User-editable prompt templates. Without it, built-in prompts are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
