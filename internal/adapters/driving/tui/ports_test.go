package tui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

type mockRAG struct {
	answer *domain.Answer
	err    error
}

func (m *mockRAG) Ask(context.Context, string, string) (*domain.Answer, error) {
	if m.answer == nil && m.err == nil {
		return &domain.Answer{Text: "ok"}, nil
	}
	return m.answer, m.err
}

type mockDocuments struct {
	docs []domain.Document
	err  error
}

func (m *mockDocuments) List(context.Context) ([]domain.Document, error) { return m.docs, m.err }

func (m *mockDocuments) Get(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrNotFound
}

func (m *mockDocuments) Delete(_ context.Context, ref string) (*domain.Document, error) {
	return &domain.Document{ID: ref}, nil
}

func (m *mockDocuments) Stats(context.Context) (*domain.CorpusStats, error) {
	return &domain.CorpusStats{}, nil
}

func TestPorts_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ports   *Ports
		wantErr error
	}{
		{"nil ports", nil, ErrInvalidPorts},
		{"missing rag", &Ports{Documents: &mockDocuments{}}, ErrMissingRAGService},
		{"missing documents", &Ports{RAG: &mockRAG{}}, ErrMissingDocumentService},
		{"complete", &Ports{RAG: &mockRAG{}, Documents: &mockDocuments{}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ports.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
