package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/vectormath"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore is an in-memory implementation of driven.VectorStore.
// Queries scan every chunk of every embedded document.
type VectorStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
	now       func() time.Time
}

// NewVectorStore creates a new in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
		now:       time.Now,
	}
}

// CreateDocument inserts a new pending document.
func (s *VectorStore) CreateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
	}

	stored := *doc
	stored.Content = ""
	stored.ChunkCount = 0
	if stored.Status == "" {
		stored.Status = domain.StatusPending
	}
	if stored.UploadedAt.IsZero() {
		stored.UploadedAt = s.now()
	}
	stored.UpdatedAt = stored.UploadedAt
	s.documents[doc.ID] = stored
	return nil
}

// UpdateDocumentStatus records a status transition.
func (s *VectorStore) UpdateDocumentStatus(_ context.Context, id string, update driven.StatusUpdate) error {
	if !update.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, update.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	doc.Status = update.Status
	doc.UpdatedAt = s.now()
	if update.TextLength > 0 {
		doc.TextLength = update.TextLength
	}
	if update.PageCount > 0 {
		doc.PageCount = update.PageCount
	}
	doc.Error = ""
	if update.Status == domain.StatusFailed {
		doc.Error = update.Error
		doc.ChunkCount = 0
		delete(s.chunks, id)
	}
	s.documents[id] = doc
	return nil
}

// UpsertChunks replaces the document's chunks and marks it embedded.
func (s *VectorStore) UpsertChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d of %s has no embedding", domain.ErrStorage, c.Ordinal, documentID)
		}
		c.DocumentID = documentID
		c.Embedding = slices.Clone(c.Embedding)
		stored[i] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: document %s does not exist", domain.ErrStorage, documentID)
	}

	s.chunks[documentID] = stored
	doc.Status = domain.StatusEmbedded
	doc.ChunkCount = len(stored)
	doc.Error = ""
	doc.UpdatedAt = s.now()
	s.documents[documentID] = doc
	return nil
}

// Query returns the k chunks most similar to vector.
func (s *VectorStore) Query(
	_ context.Context, vector []float32, k int, exclude []string,
) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.RetrievalResult
	for id, doc := range s.documents {
		if !doc.Status.IsQueryable() || slices.Contains(exclude, id) {
			continue
		}
		for _, c := range s.chunks[id] {
			score := vectormath.Cosine(vector, c.Embedding)
			c.Embedding = nil
			results = append(results, domain.RetrievalResult{
				Chunk:    c,
				Score:    score,
				Filename: doc.Filename,
			})
		}
	}

	return vectormath.TopK(results, k), nil
}

// GetDocument retrieves a document by ID.
func (s *VectorStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return &doc, nil
}

// ListDocuments returns all documents ordered by upload time then id.
func (s *VectorStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b domain.Document) int {
		if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// DeleteDocument removes a document and its chunks.
func (s *VectorStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

// Stats summarises the stored corpus.
func (s *VectorStore) Stats(_ context.Context) (*domain.CorpusStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.CorpusStats{ByStatus: make(map[domain.DocumentStatus]int)}
	for id, doc := range s.documents {
		stats.Documents++
		stats.ByStatus[doc.Status]++
		stats.Chunks += len(s.chunks[id])
		if doc.Status == domain.StatusEmbedded && doc.UpdatedAt.After(stats.LastIngestedAt) {
			stats.LastIngestedAt = doc.UpdatedAt
		}
	}
	return stats, nil
}

// Ping always succeeds.
func (s *VectorStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *VectorStore) Close() error {
	return nil
}
