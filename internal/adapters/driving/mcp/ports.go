package mcp

import (
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server calls.
type Ports struct {
	// RAG answers questions. Required.
	RAG driving.RAGService

	// Documents lists and deletes documents.
	Documents driving.DocumentService

	// Ingest accepts new PDFs.
	Ingest driving.IngestService

	// Conversations exposes session history.
	Conversations driving.ConversationService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.RAG == nil {
		return ErrMissingRAGService
	}
	return nil
}
