// Package storetest holds behaviour tests shared by every store implementation.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Dimensions is the vector size used by the shared tests.
const Dimensions = 3

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Document returns a pending document uploaded n minutes after a fixed instant.
func Document(id, filename string, n int) *domain.Document {
	return &domain.Document{
		ID:         id,
		Filename:   filename,
		Status:     domain.StatusPending,
		UploadedAt: baseTime.Add(time.Duration(n) * time.Minute),
	}
}

// Chunks builds one embedded chunk per vector.
func Chunks(documentID string, vectors ...[]float32) []domain.Chunk {
	chunks := make([]domain.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = domain.Chunk{
			ID:          fmt.Sprintf("%s-chunk-%d", documentID, i),
			DocumentID:  documentID,
			Ordinal:     i,
			Content:     fmt.Sprintf("content %d of %s", i, documentID),
			StartOffset: i * 10,
			EndOffset:   i*10 + 10,
			Section:     "Chapter 1",
			Embedding:   v,
			CreatedAt:   baseTime,
		}
	}
	return chunks
}

func embed(t *testing.T, s driven.VectorStore, doc *domain.Document, vectors ...[]float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NoError(t, s.UpdateDocumentStatus(ctx, doc.ID, driven.StatusUpdate{Status: domain.StatusChunked, TextLength: 100}))
	require.NoError(t, s.UpsertChunks(ctx, doc.ID, Chunks(doc.ID, vectors...)))
}

// RunVectorStore exercises a driven.VectorStore. newStore must return an
// empty store; it is called once per subtest.
func RunVectorStore(t *testing.T, newStore func(t *testing.T) driven.VectorStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateDocument(ctx, Document("doc-1", "manual.pdf", 0)))

		got, err := s.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "manual.pdf", got.Filename)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.True(t, got.UploadedAt.Equal(baseTime))

		err = s.CreateDocument(ctx, Document("doc-1", "other.pdf", 1))
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		_, err = s.GetDocument(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("status transitions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateDocument(ctx, Document("doc-1", "a.pdf", 0)))

		require.NoError(t, s.UpdateDocumentStatus(ctx, "doc-1",
			driven.StatusUpdate{Status: domain.StatusChunked, TextLength: 1234, PageCount: 3}))
		got, err := s.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusChunked, got.Status)
		assert.Equal(t, 1234, got.TextLength)
		assert.Equal(t, 3, got.PageCount)

		require.NoError(t, s.UpdateDocumentStatus(ctx, "doc-1",
			driven.StatusUpdate{Status: domain.StatusFailed, Error: "embedding failed"}))
		got, err = s.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Equal(t, "embedding failed", got.Error)
		assert.Equal(t, 1234, got.TextLength)

		err = s.UpdateDocumentStatus(ctx, "missing", driven.StatusUpdate{Status: domain.StatusFailed, Error: "x"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("upsert requires parent document", func(t *testing.T) {
		s := newStore(t)
		err := s.UpsertChunks(ctx, "ghost", Chunks("ghost", []float32{1, 0, 0}))
		assert.ErrorIs(t, err, domain.ErrStorage)
	})

	t.Run("only embedded documents are queryable", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateDocument(ctx, Document("pending", "p.pdf", 0)))
		require.NoError(t, s.CreateDocument(ctx, Document("chunked", "c.pdf", 1)))
		require.NoError(t, s.UpdateDocumentStatus(ctx, "chunked", driven.StatusUpdate{Status: domain.StatusChunked, TextLength: 10}))

		results, err := s.Query(ctx, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, results)

		embed(t, s, Document("ready", "r.pdf", 2), []float32{1, 0, 0})
		results, err = s.Query(ctx, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "ready", results[0].Chunk.DocumentID)
		assert.Equal(t, "r.pdf", results[0].Filename)
	})

	t.Run("query ranks by similarity with deterministic ties", func(t *testing.T) {
		s := newStore(t)
		embed(t, s, Document("doc-b", "b.pdf", 0), []float32{1, 0, 0}, []float32{0, 1, 0})
		embed(t, s, Document("doc-a", "a.pdf", 1), []float32{1, 0, 0}, []float32{0.7, 0.7, 0})

		results, err := s.Query(ctx, []float32{1, 0, 0}, 3, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "doc-a", results[0].Chunk.DocumentID)
		assert.Equal(t, 0, results[0].Chunk.Ordinal)
		assert.Equal(t, "doc-b", results[1].Chunk.DocumentID)
		assert.Equal(t, 0, results[1].Chunk.Ordinal)
		assert.Equal(t, "doc-a", results[2].Chunk.DocumentID)
		assert.Equal(t, 1, results[2].Chunk.Ordinal)

		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		assert.InDelta(t, 0.7071, results[2].Score, 1e-3)
		assert.Equal(t, "content 0 of doc-a", results[0].Chunk.Content)
		assert.Equal(t, "Chapter 1", results[0].Chunk.Section)
		assert.Equal(t, 0, results[0].Chunk.StartOffset)
		assert.Equal(t, 10, results[0].Chunk.EndOffset)

		again, err := s.Query(ctx, []float32{1, 0, 0}, 3, nil)
		require.NoError(t, err)
		assert.Equal(t, results, again)
	})

	t.Run("query excludes documents", func(t *testing.T) {
		s := newStore(t)
		embed(t, s, Document("doc-1", "1.pdf", 0), []float32{1, 0, 0})
		embed(t, s, Document("doc-2", "2.pdf", 1), []float32{1, 0, 0})

		results, err := s.Query(ctx, []float32{1, 0, 0}, 5, []string{"doc-1"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc-2", results[0].Chunk.DocumentID)
	})

	t.Run("query rejects non-positive k", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Query(ctx, []float32{1, 0, 0}, 0, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("upsert replaces chunks", func(t *testing.T) {
		s := newStore(t)
		embed(t, s, Document("doc-1", "1.pdf", 0), []float32{1, 0, 0}, []float32{0, 1, 0})

		replacement := Chunks("doc-1", []float32{0, 0, 1})
		replacement[0].ID = "doc-1-replacement"
		require.NoError(t, s.UpsertChunks(ctx, "doc-1", replacement))

		got, err := s.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusEmbedded, got.Status)
		assert.Equal(t, 1, got.ChunkCount)

		results, err := s.Query(ctx, []float32{0, 0, 1}, 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc-1-replacement", results[0].Chunk.ID)
	})

	t.Run("failing a document hides its chunks", func(t *testing.T) {
		s := newStore(t)
		embed(t, s, Document("doc-1", "1.pdf", 0), []float32{1, 0, 0})

		require.NoError(t, s.UpdateDocumentStatus(ctx, "doc-1", driven.StatusUpdate{Status: domain.StatusFailed, Error: "boom"}))

		results, err := s.Query(ctx, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("delete cascades", func(t *testing.T) {
		s := newStore(t)
		embed(t, s, Document("doc-1", "1.pdf", 0), []float32{1, 0, 0})

		require.NoError(t, s.DeleteDocument(ctx, "doc-1"))
		_, err := s.GetDocument(ctx, "doc-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Chunks)

		assert.ErrorIs(t, s.DeleteDocument(ctx, "doc-1"), domain.ErrNotFound)

		// The id can be reused after deletion.
		embed(t, s, Document("doc-1", "1.pdf", 3), []float32{1, 0, 0})
	})

	t.Run("list orders by upload time then id", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateDocument(ctx, Document("c", "c.pdf", 2)))
		require.NoError(t, s.CreateDocument(ctx, Document("b", "b.pdf", 1)))
		require.NoError(t, s.CreateDocument(ctx, Document("a", "a.pdf", 1)))

		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
	})

	t.Run("stats", func(t *testing.T) {
		s := newStore(t)
		embed(t, s, Document("doc-1", "1.pdf", 0), []float32{1, 0, 0}, []float32{0, 1, 0})
		require.NoError(t, s.CreateDocument(ctx, Document("doc-2", "2.pdf", 1)))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Documents)
		assert.Equal(t, 2, stats.Chunks)
		assert.Equal(t, 1, stats.ByStatus[domain.StatusEmbedded])
		assert.Equal(t, 1, stats.ByStatus[domain.StatusPending])
		assert.False(t, stats.LastIngestedAt.IsZero())
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(ctx))
	})
}

// RunConversationStore exercises a driven.ConversationStore.
func RunConversationStore(t *testing.T, newStore func(t *testing.T) driven.ConversationStore) {
	ctx := context.Background()

	turn := func(session string, ordinal int64, role domain.Role, text string) domain.ConversationTurn {
		return domain.ConversationTurn{
			SessionID: session,
			Role:      role,
			Text:      text,
			Ordinal:   ordinal,
			Timestamp: baseTime.Add(time.Duration(ordinal) * time.Second),
		}
	}

	t.Run("append and load", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Append(ctx,
			turn("chat-1", 1, domain.RoleUser, "hola"),
			turn("chat-1", 2, domain.RoleAssistant, "¡hola!"),
		))
		require.NoError(t, s.Append(ctx, turn("chat-2", 1, domain.RoleUser, "other")))

		got, err := s.Load(ctx, "chat-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "hola", got[0].Text)
		assert.Equal(t, domain.RoleAssistant, got[1].Role)
		assert.Equal(t, int64(2), got[1].Ordinal)
		assert.True(t, got[1].Timestamp.Equal(baseTime.Add(2*time.Second)))
	})

	t.Run("load unknown session", func(t *testing.T) {
		got, err := newStore(t).Load(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete before", func(t *testing.T) {
		s := newStore(t)
		for i := int64(1); i <= 5; i++ {
			require.NoError(t, s.Append(ctx, turn("chat-1", i, domain.RoleUser, fmt.Sprint(i))))
		}
		require.NoError(t, s.Append(ctx, turn("chat-2", 1, domain.RoleUser, "kept")))

		require.NoError(t, s.DeleteBefore(ctx, "chat-1", 4))

		got, err := s.Load(ctx, "chat-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(4), got[0].Ordinal)

		other, err := s.Load(ctx, "chat-2")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("sessions", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Append(ctx, turn("b", 1, domain.RoleUser, "x")))
		require.NoError(t, s.Append(ctx, turn("a", 1, domain.RoleUser, "y")))

		ids, err := s.Sessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)
	})
}
