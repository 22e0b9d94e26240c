// Package postgres stores documents, chunks and session history in
// PostgreSQL, searching vectors with the pgvector extension.
//
// Similarity is cosine distance (the <=> operator) served by an HNSW index;
// score is reported as 1 - distance so callers see the same scale as the
// in-process stores.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Config configures the PostgreSQL store.
type Config struct {
	// DatabaseURL is a libpq connection string or URL.
	DatabaseURL string

	// Dimensions is the embedding size; it fixes the vector column type.
	Dimensions int
}

// Store owns the connection pool and hands out the port implementations.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
	now        func() time.Time
}

// NewStore migrates the database and opens a connection pool.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database url is required", domain.ErrConfiguration)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be known for postgres", domain.ErrConfiguration)
	}

	// The vector type must exist before pooled connections register it.
	if err := migrate(ctx, cfg, migrations.FS); err != nil {
		return nil, fmt.Errorf("%w: running migrations: %w", domain.ErrStorage, err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing database url: %w", domain.ErrConfiguration, err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pool: %w", domain.ErrStorage, err)
	}

	return &Store{pool: pool, dimensions: cfg.Dimensions, now: time.Now}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// VectorStore returns a VectorStore interface backed by this store.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// ConversationStore returns a ConversationStore interface backed by this store.
func (s *Store) ConversationStore() driven.ConversationStore {
	return &conversationStore{store: s}
}

func migrate(ctx context.Context, cfg Config, fsys fs.FS) error {
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := conn.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").
		Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	slices.Sort(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		sql := strings.ReplaceAll(string(content), "{{dimensions}}", strconv.Itoa(cfg.Dimensions))

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, sql); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback(ctx) //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
		logger.Debug("postgres: applied migration %s", name)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

// ==================== Vector Store ====================

type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

const documentColumns = `id, filename, status, text_length, page_count, chunk_count, error, uploaded_at, updated_at`

func (s *vectorStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	status := doc.Status
	if status == "" {
		status = domain.StatusPending
	}
	uploaded := doc.UploadedAt
	if uploaded.IsZero() {
		uploaded = s.store.now()
	}

	tag, err := s.store.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, 0, '', $6, $6)
		ON CONFLICT (id) DO NOTHING
	`, doc.ID, doc.Filename, string(status), doc.TextLength, doc.PageCount, uploaded)
	if err != nil {
		return storageErr("inserting document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
	}
	return nil
}

func (s *vectorStore) UpdateDocumentStatus(ctx context.Context, id string, update driven.StatusUpdate) error {
	if !update.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, update.Status)
	}

	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	failed := update.Status == domain.StatusFailed
	errText := ""
	if failed {
		errText = update.Error
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents SET
			status = $1,
			text_length = CASE WHEN $2 > 0 THEN $2 ELSE text_length END,
			page_count = CASE WHEN $3 > 0 THEN $3 ELSE page_count END,
			chunk_count = CASE WHEN $4 THEN 0 ELSE chunk_count END,
			error = $5,
			updated_at = $6
		WHERE id = $7
	`, string(update.Status), update.TextLength, update.PageCount, failed, errText, s.store.now(), id)
	if err != nil {
		return storageErr("updating document status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	if failed {
		if _, err := tx.Exec(ctx, "DELETE FROM chunks WHERE document_id = $1", id); err != nil {
			return storageErr("dropping chunks", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

func (s *vectorStore) UpsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if len(c.Embedding) != s.store.dimensions {
			return fmt.Errorf("%w: chunk %d of %s has %d dimensions, column has %d",
				domain.ErrStorage, c.Ordinal, documentID, len(c.Embedding), s.store.dimensions)
		}
	}

	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 FOR UPDATE)", documentID).
		Scan(&exists); err != nil {
		return storageErr("checking document", err)
	}
	if !exists {
		return fmt.Errorf("%w: document %s does not exist", domain.ErrStorage, documentID)
	}

	now := s.store.now()
	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM chunks WHERE document_id = $1", documentID)
	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		batch.Queue(`
			INSERT INTO chunks (id, document_id, ordinal, content, start_offset, end_offset, section, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, c.ID, documentID, c.Ordinal, c.Content, c.StartOffset, c.EndOffset, c.Section,
			pgvector.NewVector(c.Embedding), created)
	}
	batch.Queue(`
		UPDATE documents SET status = $1, chunk_count = $2, error = '', updated_at = $3 WHERE id = $4
	`, string(domain.StatusEmbedded), len(chunks), now, documentID)

	results := tx.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return storageErr("writing chunks", err)
		}
	}
	if err := results.Close(); err != nil {
		return storageErr("writing chunks", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

func (s *vectorStore) Query(
	ctx context.Context, vector []float32, k int, exclude []string,
) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if exclude == nil {
		// A NULL array would filter out every row.
		exclude = []string{}
	}

	rows, err := s.store.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.ordinal, c.content, c.start_offset, c.end_offset,
		       c.section, c.created_at, d.filename, 1 - (c.embedding <=> $1) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = $2 AND NOT (c.document_id = ANY ($3))
		ORDER BY c.embedding <=> $1, c.ordinal, c.document_id
		LIMIT $4
	`, pgvector.NewVector(vector), string(domain.StatusEmbedded), exclude, k)
	if err != nil {
		return nil, storageErr("querying chunks", err)
	}
	defer rows.Close()

	var results []domain.RetrievalResult
	for rows.Next() {
		var r domain.RetrievalResult
		c := &r.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &c.StartOffset, &c.EndOffset,
			&c.Section, &c.CreatedAt, &r.Filename, &r.Score); err != nil {
			return nil, storageErr("scanning chunk", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating chunks", err)
	}
	return results, nil
}

func (s *vectorStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.pool.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("reading document", err)
	}
	return doc, nil
}

func (s *vectorStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.pool.Query(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY uploaded_at, id")
	if err != nil {
		return nil, storageErr("listing documents", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("scanning document", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating documents", err)
	}
	return docs, nil
}

func (s *vectorStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.store.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return storageErr("deleting document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *vectorStore) Stats(ctx context.Context) (*domain.CorpusStats, error) {
	stats := &domain.CorpusStats{ByStatus: make(map[domain.DocumentStatus]int)}

	rows, err := s.store.pool.Query(ctx, "SELECT status, COUNT(*) FROM documents GROUP BY status")
	if err != nil {
		return nil, storageErr("counting documents", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, storageErr("scanning counts", err)
		}
		stats.ByStatus[domain.DocumentStatus(status)] = n
		stats.Documents += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating counts", err)
	}

	var last *time.Time
	if err := s.store.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM chunks),
		       (SELECT MAX(updated_at) FROM documents WHERE status = $1)
	`, string(domain.StatusEmbedded)).Scan(&stats.Chunks, &last); err != nil {
		return nil, storageErr("counting chunks", err)
	}
	if last != nil {
		stats.LastIngestedAt = last.UTC()
	}
	return stats, nil
}

func (s *vectorStore) Ping(ctx context.Context) error {
	if err := s.store.pool.Ping(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the pool.
func (s *vectorStore) Close() error {
	return nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		doc    domain.Document
		status string
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &status, &doc.TextLength, &doc.PageCount,
		&doc.ChunkCount, &doc.Error, &doc.UploadedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.UploadedAt = doc.UploadedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

// ==================== Conversation Store ====================

type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

func (s *conversationStore) Append(ctx context.Context, turns ...domain.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range turns {
		batch.Queue(`
			INSERT INTO conversation_turns (session_id, ordinal, role, text, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, t.SessionID, t.Ordinal, string(t.Role), t.Text, t.Timestamp)
	}
	// SendBatch on the pool runs the queued statements in an implicit transaction.
	if err := s.store.pool.SendBatch(ctx, batch).Close(); err != nil {
		return storageErr("saving turns", err)
	}
	return nil
}

func (s *conversationStore) Load(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	rows, err := s.store.pool.Query(ctx, `
		SELECT ordinal, role, text, created_at FROM conversation_turns
		WHERE session_id = $1 ORDER BY ordinal
	`, sessionID)
	if err != nil {
		return nil, storageErr("loading turns", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		t := domain.ConversationTurn{SessionID: sessionID}
		var role string
		if err := rows.Scan(&t.Ordinal, &role, &t.Text, &t.Timestamp); err != nil {
			return nil, storageErr("scanning turn", err)
		}
		t.Role = domain.Role(role)
		t.Timestamp = t.Timestamp.UTC()
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating turns", err)
	}
	return turns, nil
}

func (s *conversationStore) DeleteBefore(ctx context.Context, sessionID string, ordinal int64) error {
	if _, err := s.store.pool.Exec(ctx,
		"DELETE FROM conversation_turns WHERE session_id = $1 AND ordinal < $2", sessionID, ordinal); err != nil {
		return storageErr("deleting turns", err)
	}
	return nil
}

func (s *conversationStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.store.pool.Query(ctx,
		"SELECT DISTINCT session_id FROM conversation_turns ORDER BY session_id")
	if err != nil {
		return nil, storageErr("listing sessions", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storageErr("scanning sessions", err)
	}
	return ids, nil
}

// Close is a no-op; the owning Store closes the pool.
func (s *conversationStore) Close() error {
	return nil
}
