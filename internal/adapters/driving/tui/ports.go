// Package tui provides an interactive terminal chat over the ingested documents.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the TUI.
type Ports struct {
	// RAG answers questions.
	RAG driving.RAGService

	// Documents lists and deletes ingested documents.
	Documents driving.DocumentService

	// Conversations restores the history of the session on start. Optional.
	Conversations driving.ConversationService
}

// Validate ensures the required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.RAG == nil {
		return ErrMissingRAGService
	}
	if p.Documents == nil {
		return ErrMissingDocumentService
	}
	return nil
}
