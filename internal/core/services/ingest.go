package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// staleIngestAfter is how long a pending or chunked document may sit
// untouched before a new ingest may replace it.
const staleIngestAfter = 15 * time.Minute

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService turns PDFs into embedded, queryable chunks.
//
// A document moves pending -> chunked -> embedded. Its chunks become
// visible in one store transaction at the end, so a document is either
// fully queryable or not at all. Any failure marks it failed.
type IngestService struct {
	store     driven.VectorStore
	extractor driven.TextExtractor
	pipeline  driven.PostProcessorPipeline
	embedder  *EmbeddingClient
	settings  domain.IngestSettings
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewIngestService creates an ingestion service.
func NewIngestService(
	store driven.VectorStore,
	extractor driven.TextExtractor,
	pipeline driven.PostProcessorPipeline,
	embedder *EmbeddingClient,
	settings domain.IngestSettings,
) *IngestService {
	return &IngestService{
		store:     store,
		extractor: extractor,
		pipeline:  pipeline,
		embedder:  embedder,
		settings:  settings,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
}

// DocumentIDForPath derives a stable document id from a file path, so the
// same file is recognised when it is ingested again.
func DocumentIDForPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

// Ingest processes one PDF. An empty documentID gets a random id.
func (s *IngestService) Ingest(
	ctx context.Context, documentID, filename string, pdf []byte,
) (*driving.IngestResult, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is empty", domain.ErrInvalidInput)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, filename)
	}
	if limit := s.settings.MaxFileBytes; limit > 0 && int64(len(pdf)) > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, the limit is %d",
			domain.ErrInvalidInput, filename, len(pdf), limit)
	}
	if documentID == "" {
		documentID = uuid.New().String()
	}

	release, ok := s.claim(documentID)
	if !ok {
		return nil, fmt.Errorf("ingest %s: document %s is being ingested: %w",
			filename, documentID, domain.ErrAlreadyExists)
	}
	defer release()

	logger.Section("Ingest " + filename)

	doc := &domain.Document{
		ID:         documentID,
		Filename:   filename,
		Status:     domain.StatusPending,
		UploadedAt: s.now(),
	}
	if err := s.create(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", filename, err)
	}

	result := &driving.IngestResult{DocumentID: doc.ID, Filename: filename, Status: domain.StatusPending}

	chunks, err := s.process(ctx, doc, pdf)
	if err != nil {
		return s.fail(ctx, result, err)
	}

	result.Status = domain.StatusEmbedded
	result.Chunks = len(chunks)
	logger.Info("ingest: %s embedded as %s (%d chunks, %d pages)", filename, doc.ID, len(chunks), doc.PageCount)
	return result, nil
}

// claim marks documentID as being ingested by this service. It reports
// false when another ingest of the same id is still running.
func (s *IngestService) claim(documentID string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[documentID]; busy {
		return nil, false
	}
	s.inflight[documentID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inflight, documentID)
		s.mu.Unlock()
	}, true
}

// create inserts the document. A failed document with the same id is
// replaced, and so is a pending or chunked one abandoned by a run that
// never finished.
func (s *IngestService) create(ctx context.Context, doc *domain.Document) error {
	err := s.store.CreateDocument(ctx, doc)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		return err
	}

	existing, getErr := s.store.GetDocument(ctx, doc.ID)
	if getErr != nil {
		return getErr
	}
	if !s.replaceable(existing) {
		return fmt.Errorf("document %s is %s: %w", doc.ID, existing.Status, domain.ErrAlreadyExists)
	}

	logger.Debug("ingest: replacing %s document %s", existing.Status, doc.ID)
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return s.store.CreateDocument(ctx, doc)
}

func (s *IngestService) replaceable(doc *domain.Document) bool {
	switch doc.Status {
	case domain.StatusFailed:
		return true
	case domain.StatusPending, domain.StatusChunked:
		return s.now().Sub(doc.UpdatedAt) >= staleIngestAfter
	default:
		return false
	}
}

// process runs extraction, chunking, embedding and storage.
func (s *IngestService) process(ctx context.Context, doc *domain.Document, pdf []byte) ([]domain.Chunk, error) {
	extracted, err := s.extractor.Extract(ctx, pdf)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	doc.Content = extracted.Text
	doc.TextLength = utf8.RuneCountInString(extracted.Text)
	doc.PageCount = extracted.PageCount
	defer func() { doc.Content = "" }()

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk: %w: no text to index", domain.ErrExtraction)
	}

	if err := s.store.UpdateDocumentStatus(ctx, doc.ID, driven.StatusUpdate{
		Status:     domain.StatusChunked,
		TextLength: doc.TextLength,
		PageCount:  doc.PageCount,
	}); err != nil {
		return nil, fmt.Errorf("mark chunked: %w", err)
	}
	logger.Debug("ingest: %s chunked into %d chunks", doc.ID, len(chunks))

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := s.store.UpsertChunks(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	return chunks, nil
}

// fail marks the document failed. The status is written even when ctx
// is already cancelled.
func (s *IngestService) fail(
	ctx context.Context, result *driving.IngestResult, err error,
) (*driving.IngestResult, error) {
	logger.Warn("ingest: %s failed (%s): %v", result.Filename, domain.ErrorKind(err), err)

	update := driven.StatusUpdate{Status: domain.StatusFailed, Error: err.Error()}
	if markErr := s.store.UpdateDocumentStatus(context.WithoutCancel(ctx), result.DocumentID, update); markErr != nil {
		logger.Error("ingest: marking %s failed: %v", result.DocumentID, markErr)
	}

	result.Status = domain.StatusFailed
	result.Err = err
	return result, fmt.Errorf("ingest %s: %w", result.Filename, err)
}

// IngestFiles ingests files concurrently, at most settings.Workers at a time.
// Each file is stored under DocumentIDForPath.
func (s *IngestService) IngestFiles(ctx context.Context, paths []string) []driving.IngestResult {
	results := make([]driving.IngestResult, len(paths))

	var g errgroup.Group
	g.SetLimit(max(s.settings.Workers, 1))
	for i, path := range paths {
		g.Go(func() error {
			results[i] = s.ingestFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *IngestService) ingestFile(ctx context.Context, path string) driving.IngestResult {
	filename := filepath.Base(path)
	failed := func(err error) driving.IngestResult {
		return driving.IngestResult{Path: path, Filename: filename, Status: domain.StatusFailed, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return failed(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return failed(fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
	}
	if limit := s.settings.MaxFileBytes; limit > 0 && info.Size() > limit {
		return failed(fmt.Errorf("%w: %s is %d bytes, the limit is %d",
			domain.ErrInvalidInput, filename, info.Size(), limit))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return failed(fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
	}

	id := DocumentIDForPath(path)
	result, err := s.Ingest(ctx, id, filename, data)
	if result == nil {
		r := failed(err)
		r.DocumentID = id
		if errors.Is(err, domain.ErrAlreadyExists) {
			// The stored document is untouched; its status is not ours to report.
			r.Status = ""
		}
		return r
	}
	result.Path = path
	result.Err = err
	return *result
}
