package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
	"github.com/custodia-labs/ragbot/internal/vectormath"
)

// queryEmbedder embeds a single query text.
type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds the chunks most similar to a query.
//
// It fetches k + margin candidates, keeps at most PerDocumentCap per
// document, and widens the window while too few survive. Documents that
// already hit the cap are excluded from the wider queries.
type Retriever struct {
	embedder queryEmbedder
	store    driven.VectorStore
	settings domain.RetrievalSettings
}

// NewRetriever creates a retriever.
func NewRetriever(embedder queryEmbedder, store driven.VectorStore, settings domain.RetrievalSettings) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		settings: settings,
	}
}

// Retrieve returns at most k results ranked by similarity, ties broken
// by lower chunk ordinal then lower document id.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	window := k + r.settings.Margin
	limit := max(r.settings.MaxCandidates, window)
	capPerDoc := r.settings.PerDocumentCap

	var (
		kept      []domain.RetrievalResult
		seen      = make(map[string]bool)
		perDoc    = make(map[string]int)
		saturated []string
	)

	for {
		candidates, err := r.store.Query(ctx, vector, window, saturated)
		if err != nil {
			return nil, fmt.Errorf("query store: %w", err)
		}

		for _, c := range candidates {
			if seen[c.Chunk.ID] {
				continue
			}
			seen[c.Chunk.ID] = true

			docID := c.Chunk.DocumentID
			if capPerDoc > 0 && perDoc[docID] >= capPerDoc {
				continue
			}
			perDoc[docID]++
			if capPerDoc > 0 && perDoc[docID] == capPerDoc {
				saturated = append(saturated, docID)
			}
			kept = append(kept, c)
		}

		exhausted := len(candidates) < window
		if len(kept) >= k || exhausted || window >= limit {
			break
		}
		window = min(window*2, limit)
		logger.Debug("retrieve: %d of %d results after capping, widening window to %d", len(kept), k, window)
	}

	slices.SortFunc(kept, vectormath.Compare)
	if len(kept) > k {
		kept = kept[:k]
	}
	logger.Debug("retrieve: returning %d results", len(kept))
	return kept, nil
}
