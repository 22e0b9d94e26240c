package driving

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// IngestService turns uploaded PDFs into queryable chunks.
type IngestService interface {
	// Ingest processes one PDF. An empty documentID gets a generated id.
	// On failure the document is left in StatusFailed and the error is returned.
	Ingest(ctx context.Context, documentID, filename string, pdf []byte) (*IngestResult, error)

	// IngestFiles reads and ingests files from disk concurrently.
	// It returns one result per path, in input order, and never fails as a whole.
	IngestFiles(ctx context.Context, paths []string) []IngestResult
}

// IngestResult reports the outcome of one ingestion.
type IngestResult struct {
	// Path is the source file, empty for in-memory uploads.
	Path string

	// DocumentID is the id the document was stored under.
	DocumentID string

	// Filename is the citation name.
	Filename string

	// Status is the final document status.
	Status domain.DocumentStatus

	// Chunks is the number of chunks stored.
	Chunks int

	// Err is the failure, nil when Status is StatusEmbedded.
	Err error
}
