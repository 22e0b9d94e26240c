// Package mcp exposes ragbot over the Model Context Protocol so AI
// assistants can ask questions about, and manage, the ingested documents.
package mcp

import "errors"

// ErrMissingRAGService is returned when the question answering service is not provided.
var ErrMissingRAGService = errors.New("mcp: rag service is required")
