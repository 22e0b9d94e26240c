package driving

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// DocumentService manages ingested documents.
type DocumentService interface {
	// List returns all documents ordered by upload time.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Delete removes a document and its chunks. The reference is tried as
	// an id first, then as a filename; an ambiguous filename is rejected.
	Delete(ctx context.Context, ref string) (*domain.Document, error)

	// Stats summarises the corpus.
	Stats(ctx context.Context) (*domain.CorpusStats, error)
}
