// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Question answering is split into a retriever, a conversation manager and
// a synthesizer, composed by RAGService. Provider calls go through a shared
// RetryPolicy; nothing else in the core retries.
package services
