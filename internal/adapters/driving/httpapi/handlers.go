package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

// QueryResponse is the answer to a question.
type QueryResponse struct {
	Response     string           `json:"response"`
	Citations    []string         `json:"citations"`
	SourcesCount int              `json:"sources_count"`
	Sources      []SourceResponse `json:"sources"`
}

// SourceResponse is one chunk used as evidence.
type SourceResponse struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
}

// DocumentResponse describes a stored document.
type DocumentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	Characters int       `json:"characters"`
	Chunks     int       `json:"chunks_count"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IngestResponse reports an upload.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks_count"`
	Error      string `json:"error,omitempty"`
}

// TurnResponse is one history entry.
type TurnResponse struct {
	Ordinal   int64     `json:"ordinal"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationResponse is a session's history and activity.
type ConversationResponse struct {
	SessionID     string         `json:"session_id"`
	TotalTurns    int64          `json:"total_turns"`
	RecentTurns   int            `json:"recent_turns"`
	RetainedTurns int            `json:"retained_turns"`
	Turns         []TurnResponse `json:"turns"`
}

// StatsResponse summarises the corpus.
type StatsResponse struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	ByStatus       map[string]int `json:"by_status"`
	LastIngestedAt *time.Time     `json:"last_ingested_at,omitempty"`
}

// DiagnoseResponse is the outcome of a health probe.
type DiagnoseResponse struct {
	Healthy bool            `json:"healthy"`
	Checks  []CheckResponse `json:"checks"`
	Corpus  *StatsResponse  `json:"corpus,omitempty"`
}

// CheckResponse is one probed dependency.
type CheckResponse struct {
	Name      string `json:"name"`
	Detail    string `json:"detail"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "http"
	}

	answer, err := s.ports.RAG.Ask(r.Context(), req.SessionID, req.Query)
	if err != nil {
		// Query failures carry the user-facing wording only.
		writeError(w, statusFor(err), domain.UserMessage(err), domain.ErrorKind(err))
		return
	}

	resp := QueryResponse{
		Response:     answer.Text,
		Citations:    answer.Citations,
		SourcesCount: len(answer.Evidence),
		Sources:      make([]SourceResponse, len(answer.Evidence)),
	}
	if resp.Citations == nil {
		resp.Citations = []string{}
	}
	for i, ev := range answer.Evidence {
		resp.Sources[i] = SourceResponse{
			DocumentID: ev.Chunk.DocumentID,
			Filename:   ev.Filename,
			Ordinal:    ev.Chunk.Ordinal,
			Score:      ev.Score,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxFileBytes > 0 {
		// Room for multipart framing.
		r.Body = http.MaxBytesReader(w, r.Body, s.maxFileBytes+1<<20)
	}

	data, filename, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "only PDF files are accepted", "")
		return
	}

	res, err := s.ports.Ingest.Ingest(r.Context(), r.URL.Query().Get("id"), filename, data)
	if err != nil {
		logger.Warn("http: ingest %s: %v", filename, err)
		if res == nil {
			writeError(w, statusFor(err), err.Error(), domain.ErrorKind(err))
			return
		}
		writeJSON(w, statusFor(err), ingestResponse(res, err))
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse(res, nil))
}

// readUpload accepts a multipart "file" field, or a raw body named by ?filename=.
func readUpload(r *http.Request) ([]byte, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("multipart field \"file\": %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return data, filepath.Base(header.Filename), nil
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		return nil, "", errors.New("filename query parameter is required for raw uploads")
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty body")
	}
	return data, filepath.Base(filename), nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ports.Documents.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error(), domain.ErrorKind(err))
		return
	}
	out := make([]DocumentResponse, len(docs))
	for i := range docs {
		out[i] = documentResponse(&docs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ports.Documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error(), domain.ErrorKind(err))
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ports.Documents.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error(), domain.ErrorKind(err))
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(doc))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ports.Documents.Stats(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error(), domain.ErrorKind(err))
		return
	}
	writeJSON(w, http.StatusOK, statsResponse(stats))
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	turns, err := s.ports.Conversations.History(r.Context(), session)
	if err != nil {
		writeError(w, statusFor(err), err.Error(), domain.ErrorKind(err))
		return
	}
	stats, err := s.ports.Conversations.Stats(r.Context(), session)
	if err != nil {
		writeError(w, statusFor(err), err.Error(), domain.ErrorKind(err))
		return
	}

	resp := ConversationResponse{
		SessionID:     session,
		TotalTurns:    stats.TotalTurns,
		RecentTurns:   stats.RecentTurns,
		RetainedTurns: stats.RetainedTurns,
		Turns:         make([]TurnResponse, len(turns)),
	}
	for i, t := range turns {
		resp.Turns[i] = TurnResponse{Ordinal: t.Ordinal, Role: t.Role.String(), Text: t.Text, CreatedAt: t.Timestamp}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	d := s.ports.Status.Diagnose(r.Context())

	resp := DiagnoseResponse{Healthy: d.Healthy, Checks: make([]CheckResponse, len(d.Checks))}
	for i, c := range d.Checks {
		resp.Checks[i] = CheckResponse{
			Name:      c.Name,
			Detail:    c.Detail,
			OK:        c.OK,
			Error:     c.Error,
			LatencyMS: c.Latency.Milliseconds(),
		}
	}
	if d.Corpus != nil {
		resp.Corpus = statsResponse(d.Corpus)
	}

	code := http.StatusOK
	if !d.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func documentResponse(doc *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status.String(),
		Pages:      doc.PageCount,
		Characters: doc.TextLength,
		Chunks:     doc.ChunkCount,
		Error:      doc.Error,
		CreatedAt:  doc.UploadedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func ingestResponse(res *driving.IngestResult, err error) IngestResponse {
	out := IngestResponse{
		DocumentID: res.DocumentID,
		Filename:   res.Filename,
		Status:     res.Status.String(),
		Chunks:     res.Chunks,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func statsResponse(stats *domain.CorpusStats) *StatsResponse {
	out := &StatsResponse{
		Documents: stats.Documents,
		Chunks:    stats.Chunks,
		ByStatus:  make(map[string]int, len(stats.ByStatus)),
	}
	for status, n := range stats.ByStatus {
		out.ByStatus[status.String()] = n
	}
	if !stats.LastIngestedAt.IsZero() {
		t := stats.LastIngestedAt
		out.LastIngestedAt = &t
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg, kind string) {
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}
