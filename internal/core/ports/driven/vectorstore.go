package driven

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// VectorStore persists documents and embedded chunks and answers
// nearest-neighbour queries. All failures wrap domain.ErrStorage unless
// a more specific sentinel is documented.
type VectorStore interface {
	// CreateDocument inserts a new document record.
	// Returns domain.ErrAlreadyExists if the id is taken.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// UpdateDocumentStatus records a status transition. Moving to
	// StatusFailed drops the document's chunks.
	// Returns domain.ErrNotFound if the document is absent.
	UpdateDocumentStatus(ctx context.Context, id string, update StatusUpdate) error

	// UpsertChunks replaces the document's chunks and marks it embedded
	// in one transaction. Every chunk must carry its embedding.
	// Returns domain.ErrStorage when the parent document does not exist.
	UpsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// Query returns at most k chunks of embedded documents ordered by
	// cosine similarity to vector, ties broken by lower ordinal then lower
	// document id. Chunks of documents in exclude are skipped.
	// Returns domain.ErrInvalidInput when k <= 0.
	Query(ctx context.Context, vector []float32, k int, exclude []string) ([]domain.RetrievalResult, error)

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if absent.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns all documents ordered by upload time then id.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document and its chunks.
	// Returns domain.ErrNotFound if absent.
	DeleteDocument(ctx context.Context, id string) error

	// Stats summarises the stored corpus.
	Stats(ctx context.Context) (*domain.CorpusStats, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// StatusUpdate describes a document status transition.
// Zero TextLength and PageCount leave the stored values unchanged.
type StatusUpdate struct {
	Status     domain.DocumentStatus
	TextLength int
	PageCount  int

	// Error is the failure text for StatusFailed.
	Error string
}
