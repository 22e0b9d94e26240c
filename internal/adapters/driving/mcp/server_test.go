package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	t.Run("nil rag service returns error", func(t *testing.T) {
		server, err := NewServer(&Ports{})
		require.Error(t, err)
		assert.Nil(t, server)
		assert.ErrorIs(t, err, ErrMissingRAGService)
	})

	t.Run("rag only creates server", func(t *testing.T) {
		server, err := NewServer(&Ports{RAG: &mockRAGService{}})
		require.NoError(t, err)
		assert.NotNil(t, server)
	})

	t.Run("all ports creates server", func(t *testing.T) {
		server, err := NewServer(&Ports{
			RAG:           &mockRAGService{},
			Documents:     &mockDocumentService{},
			Ingest:        &mockIngestService{},
			Conversations: &mockConversationService{},
		})
		require.NoError(t, err)
		assert.NotNil(t, server)
	})
}
