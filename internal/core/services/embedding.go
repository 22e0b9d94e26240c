package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// EmbeddingClient turns texts into vectors through an embedding provider.
// It splits inputs into batches, runs a bounded number of batches at once,
// and retries transient provider failures per batch.
type EmbeddingClient struct {
	provider    driven.EmbeddingService
	batchSize   int
	concurrency int
	retry       *RetryPolicy
}

// NewEmbeddingClient creates an embedding client.
// The batch size is capped by the provider's own limit.
func NewEmbeddingClient(
	provider driven.EmbeddingService, settings domain.EmbeddingSettings, retry *RetryPolicy,
) *EmbeddingClient {
	batch := settings.BatchSize
	if limit := provider.MaxBatchSize(); limit > 0 && (batch <= 0 || limit < batch) {
		batch = limit
	}
	return &EmbeddingClient{
		provider:    provider,
		batchSize:   max(batch, 1),
		concurrency: max(settings.Concurrency, 1),
		retry:       retry,
	}
}

// Embed returns one vector per text, in input order.
// Any batch failing after retries fails the whole call with domain.ErrEmbeddingUnavailable.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			return c.embedBatch(gctx, texts[start:end], vectors[start:end])
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := checkDimensions(vectors, c.provider.Dimensions()); err != nil {
		return nil, err
	}

	logger.Debug("embedded %d texts in batches of %d", len(texts), c.batchSize)
	return vectors, nil
}

// embedBatch embeds one batch and writes the vectors into out.
func (c *EmbeddingClient) embedBatch(ctx context.Context, batch []string, out [][]float32) error {
	var got [][]float32
	err := c.retry.Do(ctx, "embed", func(ctx context.Context) error {
		var err error
		got, err = c.provider.EmbedBatch(ctx, batch)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(got) != len(batch) {
		return fmt.Errorf("%w: provider returned %d vectors for %d texts",
			domain.ErrEmbeddingUnavailable, len(got), len(batch))
	}
	copy(out, got)
	return nil
}

// EmbedQuery embeds a single text.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// ModelName returns the provider's model name.
func (c *EmbeddingClient) ModelName() string {
	return c.provider.ModelName()
}

// Ping checks the provider is reachable.
func (c *EmbeddingClient) Ping(ctx context.Context) error {
	return c.provider.Ping(ctx)
}

// checkDimensions verifies every vector has the same, non-zero length.
// When the provider reports its dimensions they must match too.
func checkDimensions(vectors [][]float32, want int) error {
	if want <= 0 {
		want = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				domain.ErrEmbeddingUnavailable, i, len(v), want)
		}
	}
	return nil
}
