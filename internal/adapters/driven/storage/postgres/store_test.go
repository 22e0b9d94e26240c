package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/storetest"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// setupTestStore connects to RAGBOT_TEST_DATABASE_URL and empties every table.
// Tests are skipped when no database is configured.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("RAGBOT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("RAGBOT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := NewStore(ctx, Config{DatabaseURL: url, Dimensions: storetest.Dimensions})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	_, err = store.pool.Exec(ctx, "TRUNCATE documents, chunks, conversation_turns CASCADE")
	require.NoError(t, err)
	return store
}

func TestVectorStore(t *testing.T) {
	storetest.RunVectorStore(t, func(t *testing.T) driven.VectorStore {
		return setupTestStore(t).VectorStore()
	})
}

func TestConversationStore(t *testing.T) {
	storetest.RunConversationStore(t, func(t *testing.T) driven.ConversationStore {
		return setupTestStore(t).ConversationStore()
	})
}

func TestVectorStore_RejectsWrongDimensions(t *testing.T) {
	ctx := context.Background()
	vs := setupTestStore(t).VectorStore()
	require.NoError(t, vs.CreateDocument(ctx, storetest.Document("doc-1", "a.pdf", 0)))

	err := vs.UpsertChunks(ctx, "doc-1", storetest.Chunks("doc-1", []float32{1, 0}))
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestNewStore_RequiresConfiguration(t *testing.T) {
	ctx := context.Background()

	_, err := NewStore(ctx, Config{Dimensions: 3})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewStore(ctx, Config{DatabaseURL: "postgres://localhost/ragbot"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
