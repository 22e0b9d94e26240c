package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

type stubRAG struct {
	answer  *domain.Answer
	err     error
	session string
}

func (s *stubRAG) Ask(_ context.Context, sessionID, _ string) (*domain.Answer, error) {
	s.session = sessionID
	return s.answer, s.err
}

type stubIngest struct {
	result   *driving.IngestResult
	err      error
	id       string
	filename string
	data     []byte
}

func (s *stubIngest) Ingest(_ context.Context, id, filename string, pdf []byte) (*driving.IngestResult, error) {
	s.id, s.filename, s.data = id, filename, pdf
	return s.result, s.err
}

func (s *stubIngest) IngestFiles(context.Context, []string) []driving.IngestResult { return nil }

type stubDocuments struct {
	docs []domain.Document
	err  error
}

func (s *stubDocuments) List(context.Context) ([]domain.Document, error) { return s.docs, s.err }

func (s *stubDocuments) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range s.docs {
		if s.docs[i].ID == id {
			return &s.docs[i], nil
		}
	}
	return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
}

func (s *stubDocuments) Delete(ctx context.Context, ref string) (*domain.Document, error) {
	return s.Get(ctx, ref)
}

func (s *stubDocuments) Stats(context.Context) (*domain.CorpusStats, error) {
	return &domain.CorpusStats{
		Documents: len(s.docs),
		Chunks:    7,
		ByStatus:  map[domain.DocumentStatus]int{domain.StatusEmbedded: len(s.docs)},
	}, s.err
}

type stubConversations struct {
	turns []domain.ConversationTurn
}

func (s *stubConversations) History(context.Context, string) ([]domain.ConversationTurn, error) {
	return s.turns, nil
}

func (s *stubConversations) Stats(_ context.Context, id string) (*domain.SessionStats, error) {
	return &domain.SessionStats{SessionID: id, TotalTurns: 10, RetainedTurns: len(s.turns)}, nil
}

func (s *stubConversations) Sessions(context.Context) ([]string, error) { return nil, nil }

type stubStatus struct {
	diagnosis *driving.Diagnosis
}

func (s *stubStatus) Diagnose(context.Context) *driving.Diagnosis { return s.diagnosis }

func newTestHandler(t *testing.T, ports *Ports) http.Handler {
	t.Helper()
	if ports.RAG == nil {
		ports.RAG = &stubRAG{}
	}
	srv, err := NewServer(ports, 1<<20)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresRAG(t *testing.T) {
	_, err := NewServer(&Ports{}, 0)
	assert.ErrorIs(t, err, ErrMissingRAGService)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &Ports{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		rag        *stubRAG
		wantCode   int
		wantInBody string
	}{
		{
			name: "answer",
			body: `{"query":"what?","session_id":"u1"}`,
			rag: &stubRAG{answer: &domain.Answer{
				Text:      "Because.",
				Citations: []string{"a.pdf"},
				Evidence:  []domain.RetrievalResult{{Chunk: domain.Chunk{DocumentID: "d1"}, Filename: "a.pdf", Score: 0.8}},
			}},
			wantCode:   http.StatusOK,
			wantInBody: `"sources_count":1`,
		},
		{
			name:       "invalid json",
			body:       `{`,
			rag:        &stubRAG{},
			wantCode:   http.StatusBadRequest,
			wantInBody: "invalid JSON",
		},
		{
			name:       "empty question",
			body:       `{"query":""}`,
			rag:        &stubRAG{err: fmt.Errorf("ask: %w", domain.ErrInvalidInput)},
			wantCode:   http.StatusBadRequest,
			wantInBody: domain.MessageInvalidQuestion,
		},
		{
			name:       "llm down",
			body:       `{"query":"q"}`,
			rag:        &stubRAG{err: fmt.Errorf("synthesize: %w", domain.ErrGenerationUnavailable)},
			wantCode:   http.StatusServiceUnavailable,
			wantInBody: "generation_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &Ports{RAG: tt.rag})

			rec := do(t, h, httptest.NewRequest(http.MethodPost, Prefix+"/query", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantInBody)
		})
	}
}

func TestQuery_DefaultSession(t *testing.T) {
	rag := &stubRAG{answer: &domain.Answer{Text: "ok"}}
	h := newTestHandler(t, &Ports{RAG: rag})

	rec := do(t, h, httptest.NewRequest(http.MethodPost, Prefix+"/query", bytes.NewBufferString(`{"query":"q"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http", rag.session)
	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{}, resp.Citations)
}

func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, Prefix+"/documents?id=fixed", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	pdf := []byte("%PDF-1.7")
	ok := &driving.IngestResult{DocumentID: "fixed", Filename: "a.pdf", Status: domain.StatusEmbedded, Chunks: 2}

	t.Run("multipart", func(t *testing.T) {
		ingest := &stubIngest{result: ok}
		h := newTestHandler(t, &Ports{Ingest: ingest})

		rec := do(t, h, multipartRequest(t, "file", "a.pdf", pdf))

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "fixed", ingest.id)
		assert.Equal(t, "a.pdf", ingest.filename)
		assert.Equal(t, pdf, ingest.data)
		assert.Contains(t, rec.Body.String(), `"status":"embedded"`)
	})

	t.Run("raw body", func(t *testing.T) {
		ingest := &stubIngest{result: ok}
		h := newTestHandler(t, &Ports{Ingest: ingest})

		req := httptest.NewRequest(http.MethodPost, Prefix+"/documents?filename=dir/b.PDF", bytes.NewReader(pdf))
		rec := do(t, h, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "b.PDF", ingest.filename)
	})

	t.Run("raw body without filename", func(t *testing.T) {
		h := newTestHandler(t, &Ports{Ingest: &stubIngest{result: ok}})

		rec := do(t, h, httptest.NewRequest(http.MethodPost, Prefix+"/documents", bytes.NewReader(pdf)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not a pdf", func(t *testing.T) {
		h := newTestHandler(t, &Ports{Ingest: &stubIngest{result: ok}})

		rec := do(t, h, multipartRequest(t, "file", "notes.txt", pdf))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong field", func(t *testing.T) {
		h := newTestHandler(t, &Ports{Ingest: &stubIngest{result: ok}})

		rec := do(t, h, multipartRequest(t, "upload", "a.pdf", pdf))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		srv, err := NewServer(&Ports{RAG: &stubRAG{}, Ingest: &stubIngest{result: ok}}, 10)
		require.NoError(t, err)
		big := bytes.Repeat([]byte("x"), 2<<20)

		req := httptest.NewRequest(http.MethodPost, Prefix+"/documents?filename=big.pdf", bytes.NewReader(big))
		rec := do(t, srv.Handler(), req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("extraction failure reports failed document", func(t *testing.T) {
		ingest := &stubIngest{
			result: &driving.IngestResult{DocumentID: "d", Filename: "a.pdf", Status: domain.StatusFailed},
			err:    fmt.Errorf("extract: %w", domain.ErrExtraction),
		}
		h := newTestHandler(t, &Ports{Ingest: ingest})

		rec := do(t, h, multipartRequest(t, "file", "a.pdf", pdf))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"failed"`)
	})

	t.Run("duplicate", func(t *testing.T) {
		ingest := &stubIngest{err: domain.ErrAlreadyExists}
		h := newTestHandler(t, &Ports{Ingest: ingest})

		rec := do(t, h, multipartRequest(t, "file", "a.pdf", pdf))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestDocuments(t *testing.T) {
	docs := &stubDocuments{docs: []domain.Document{
		{ID: "d1", Filename: "a.pdf", Status: domain.StatusEmbedded, ChunkCount: 3, UploadedAt: time.Unix(100, 0).UTC()},
	}}
	h := newTestHandler(t, &Ports{Documents: docs})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Chunks)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/documents/d1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodDelete, Prefix+"/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")

	rec = do(t, h, httptest.NewRequest(http.MethodDelete, Prefix+"/documents/d1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"embedded":1`)
}

func TestDocuments_StorageError(t *testing.T) {
	h := newTestHandler(t, &Ports{Documents: &stubDocuments{err: fmt.Errorf("list: %w", domain.ErrStorage)}})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/documents", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConversation(t *testing.T) {
	conv := &stubConversations{turns: []domain.ConversationTurn{
		{Role: domain.RoleUser, Text: "hi", Ordinal: 9},
		{Role: domain.RoleAssistant, Text: "hello", Ordinal: 10},
	}}
	h := newTestHandler(t, &Ports{Conversations: conv})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/conversations/u42", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u42", resp.SessionID)
	assert.Equal(t, int64(10), resp.TotalTurns)
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, "assistant", resp.Turns[1].Role)
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		name     string
		healthy  bool
		wantCode int
	}{
		{name: "healthy", healthy: true, wantCode: http.StatusOK},
		{name: "unhealthy", healthy: false, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &stubStatus{diagnosis: &driving.Diagnosis{
				Healthy: tt.healthy,
				Checks:  []driving.Check{{Name: "llm", OK: tt.healthy, Latency: 12 * time.Millisecond}},
				Corpus:  &domain.CorpusStats{Documents: 1},
			}}
			h := newTestHandler(t, &Ports{Status: status})

			rec := do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/diagnose", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), `"latency_ms":12`)
		})
	}
}

func TestUnregisteredRoutes(t *testing.T) {
	h := newTestHandler(t, &Ports{})

	rec := do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/documents", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, Prefix+"/query", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, statusFor(domain.ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
