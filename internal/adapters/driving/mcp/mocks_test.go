package mcp

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

type mockRAGService struct {
	answer  *domain.Answer
	err     error
	session string
	query   string
}

func (m *mockRAGService) Ask(_ context.Context, sessionID, query string) (*domain.Answer, error) {
	m.session = sessionID
	m.query = query
	return m.answer, m.err
}

type mockDocumentService struct {
	documents []domain.Document
	deleted   *domain.Document
	deleteRef string
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return nil, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, ref string) (*domain.Document, error) {
	m.deleteRef = ref
	return m.deleted, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*domain.CorpusStats, error) {
	return &domain.CorpusStats{}, m.err
}

type mockIngestService struct {
	result   *driving.IngestResult
	err      error
	id       string
	filename string
	data     []byte
}

func (m *mockIngestService) Ingest(_ context.Context, id, filename string, pdf []byte) (*driving.IngestResult, error) {
	m.id = id
	m.filename = filename
	m.data = pdf
	return m.result, m.err
}

func (m *mockIngestService) IngestFiles(_ context.Context, _ []string) []driving.IngestResult {
	return nil
}

type mockConversationService struct {
	turns []domain.ConversationTurn
	err   error
}

func (m *mockConversationService) History(_ context.Context, _ string) ([]domain.ConversationTurn, error) {
	return m.turns, m.err
}

func (m *mockConversationService) Stats(_ context.Context, id string) (*domain.SessionStats, error) {
	return &domain.SessionStats{SessionID: id}, m.err
}

func (m *mockConversationService) Sessions(_ context.Context) ([]string, error) {
	return nil, m.err
}
