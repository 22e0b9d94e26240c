// Package httpapi serves ragbot's driving ports as a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// ErrMissingRAGService is returned when the question answering service is not provided.
var ErrMissingRAGService = errors.New("httpapi: rag service is required")

// Prefix is the path every route is mounted under.
const Prefix = "/api/v1"

// Ports aggregates the driving ports the API serves.
type Ports struct {
	RAG           driving.RAGService
	Ingest        driving.IngestService
	Documents     driving.DocumentService
	Conversations driving.ConversationService
	Status        driving.StatusService
}

// Server is the HTTP front-end.
type Server struct {
	ports        *Ports
	maxFileBytes int64
	mux          *http.ServeMux
}

// NewServer builds the route table. maxFileBytes bounds upload bodies; zero disables the bound.
func NewServer(ports *Ports, maxFileBytes int64) (*Server, error) {
	if ports == nil || ports.RAG == nil {
		return nil, ErrMissingRAGService
	}

	s := &Server{
		ports:        ports,
		maxFileBytes: maxFileBytes,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST "+Prefix+"/query", s.handleQuery)
	s.mux.HandleFunc("GET "+Prefix+"/health", s.handleHealth)

	if s.ports.Ingest != nil {
		s.mux.HandleFunc("POST "+Prefix+"/documents", s.handleUpload)
	}
	if s.ports.Documents != nil {
		s.mux.HandleFunc("GET "+Prefix+"/documents", s.handleListDocuments)
		s.mux.HandleFunc("GET "+Prefix+"/documents/{id}", s.handleGetDocument)
		s.mux.HandleFunc("DELETE "+Prefix+"/documents/{id}", s.handleDeleteDocument)
		s.mux.HandleFunc("GET "+Prefix+"/stats", s.handleStats)
	}
	if s.ports.Conversations != nil {
		s.mux.HandleFunc("GET "+Prefix+"/conversations/{session}", s.handleConversation)
	}
	if s.ports.Status != nil {
		s.mux.HandleFunc("GET "+Prefix+"/diagnose", s.handleDiagnose)
	}
}

// Handler returns the API with request logging applied.
func (s *Server) Handler() http.Handler {
	return loggingMiddleware(s.mux)
}

// Run listens on addr until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Answers wait on the LLM; ingestion waits on embeddings.
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http: shutdown: %v", err)
		}
	}()

	logger.Info("HTTP API listening on %s%s", addr, Prefix)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http server: %w", err)
}

// statusRecorder captures the response code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http: %s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
