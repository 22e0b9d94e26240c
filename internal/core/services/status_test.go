package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

func checkNamed(d *driving.Diagnosis, name string) driving.Check {
	for _, c := range d.Checks {
		if c.Name == name {
			return c
		}
	}
	return driving.Check{}
}

func TestStatusService_AllHealthy(t *testing.T) {
	store := memory.NewVectorStore()
	embedDoc(t, store, "doc-1", "a.pdf", []float32{1, 0, 0})
	svc := NewStatusService(store, "memory", newMockEmbedding(), &mockLLMService{})

	d := svc.Diagnose(context.Background())

	assert.True(t, d.Healthy)
	require.Len(t, d.Checks, 3)
	assert.Equal(t, "memory", checkNamed(d, "store").Detail)
	assert.Equal(t, "mock-embed", checkNamed(d, "embedding").Detail)
	assert.Equal(t, "mock-llm", checkNamed(d, "llm").Detail)
	require.NotNil(t, d.Corpus)
	assert.Equal(t, 1, d.Corpus.Documents)
}

func TestStatusService_ReportsFailures(t *testing.T) {
	embedding := newMockEmbedding()
	embedding.pingErr = errors.New("connection refused")
	svc := NewStatusService(memory.NewVectorStore(), "memory", embedding, nil)

	d := svc.Diagnose(context.Background())

	assert.False(t, d.Healthy)
	assert.True(t, checkNamed(d, "store").OK)

	embedCheck := checkNamed(d, "embedding")
	assert.False(t, embedCheck.OK)
	assert.Equal(t, "connection refused", embedCheck.Error)

	llmCheck := checkNamed(d, "llm")
	assert.False(t, llmCheck.OK)
	assert.Equal(t, "not configured", llmCheck.Error)

	assert.NotNil(t, d.Corpus)
}
