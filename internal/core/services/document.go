package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages ingested documents.
type DocumentService struct {
	store driven.VectorStore
}

// NewDocumentService creates a new document service.
func NewDocumentService(store driven.VectorStore) *DocumentService {
	return &DocumentService{store: store}
}

// List returns all documents ordered by upload time.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.store.ListDocuments(ctx)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, documentID)
}

// Delete removes a document by id or, failing that, by filename.
func (s *DocumentService) Delete(ctx context.Context, ref string) (*domain.Document, error) {
	doc, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("delete %s: %w", doc.ID, err)
	}
	logger.Info("deleted document %s (%s)", doc.ID, doc.Filename)
	return doc, nil
}

// Stats summarises the corpus.
func (s *DocumentService) Stats(ctx context.Context) (*domain.CorpusStats, error) {
	return s.store.Stats(ctx)
}

func (s *DocumentService) resolve(ctx context.Context, ref string) (*domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, ref)
	if err == nil {
		return doc, nil
	}

	docs, listErr := s.store.ListDocuments(ctx)
	if listErr != nil {
		return nil, listErr
	}

	var match *domain.Document
	for i := range docs {
		if docs[i].Filename != ref {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %d documents are named %q, use the id",
				domain.ErrInvalidInput, countNamed(docs, ref), ref)
		}
		match = &docs[i]
	}
	if match == nil {
		return nil, fmt.Errorf("document %q: %w", ref, domain.ErrNotFound)
	}
	return match, nil
}

func countNamed(docs []domain.Document, filename string) int {
	n := 0
	for i := range docs {
		if docs[i].Filename == filename {
			n++
		}
	}
	return n
}
