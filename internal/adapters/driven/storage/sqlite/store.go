package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/vectormath"
)

// Store owns the SQLite database and hands out the port implementations
// backed by it.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.ragbot/data/ragbot.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ragbot", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", domain.ErrStorage, err)
	}

	dbPath := filepath.Join(dataDir, "ragbot.db")

	// Pragmas in the DSN apply to every pooled connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrStorage, err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %w", domain.ErrStorage, err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// VectorStore returns a VectorStore interface backed by this store.
func (s *Store) VectorStore() driven.VectorStore {
	return &vectorStore{store: s}
}

// ConversationStore returns a ConversationStore interface backed by this store.
func (s *Store) ConversationStore() driven.ConversationStore {
	return &conversationStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
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
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// ==================== Vector Store ====================

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

const documentColumns = `id, filename, status, text_length, page_count, chunk_count, error, uploaded_at, updated_at`

// CreateDocument inserts a new document record.
func (s *vectorStore) CreateDocument(ctx context.Context, doc *domain.Document) error {
	status := doc.Status
	if status == "" {
		status = domain.StatusPending
	}
	uploaded := doc.UploadedAt
	if uploaded.IsZero() {
		uploaded = s.store.now()
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, doc.ID, doc.Filename, string(status), doc.TextLength, doc.PageCount, toUnix(uploaded), toUnix(uploaded))
	if err != nil {
		return storageErr("inserting document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// UpdateDocumentStatus records a status transition.
func (s *vectorStore) UpdateDocumentStatus(ctx context.Context, id string, update driven.StatusUpdate) error {
	if !update.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, update.Status)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	errText := ""
	if update.Status == domain.StatusFailed {
		errText = update.Error
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE documents SET
			status = ?,
			text_length = CASE WHEN ? > 0 THEN ? ELSE text_length END,
			page_count = CASE WHEN ? > 0 THEN ? ELSE page_count END,
			error = ?,
			updated_at = ?
		WHERE id = ?
	`, string(update.Status), update.TextLength, update.TextLength, update.PageCount, update.PageCount,
		errText, toUnix(s.store.now()), id)
	if err != nil {
		return storageErr("updating document status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	if update.Status == domain.StatusFailed {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return storageErr("dropping chunks", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE documents SET chunk_count = 0 WHERE id = ?", id); err != nil {
			return storageErr("resetting chunk count", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

// UpsertChunks replaces the document's chunks and marks it embedded.
func (s *vectorStore) UpsertChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: document %s does not exist", domain.ErrStorage, documentID)
	}
	if err != nil {
		return storageErr("checking document", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return storageErr("deleting old chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, content, start_offset, end_offset, section, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return storageErr("preparing statement", err)
	}
	defer stmt.Close()

	now := s.store.now()
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d of %s has no embedding", domain.ErrStorage, c.Ordinal, documentID)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, c.ID, documentID, c.Ordinal, c.Content, c.StartOffset,
			c.EndOffset, c.Section, vectormath.Encode(c.Embedding), toUnix(created)); err != nil {
			return storageErr("saving chunk", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET status = ?, chunk_count = ?, error = '', updated_at = ? WHERE id = ?
	`, string(domain.StatusEmbedded), len(chunks), toUnix(now), documentID); err != nil {
		return storageErr("marking document embedded", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

// Query scans the chunks of embedded documents and returns the k closest.
func (s *vectorStore) Query(
	ctx context.Context, vector []float32, k int, exclude []string,
) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}

	query := `
		SELECT c.id, c.document_id, c.ordinal, c.content, c.start_offset, c.end_offset,
		       c.section, c.embedding, c.created_at, d.filename
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = ?`
	args := []any{string(domain.StatusEmbedded)}
	if len(exclude) > 0 {
		query += " AND c.document_id NOT IN (?" + strings.Repeat(", ?", len(exclude)-1) + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("querying chunks", err)
	}
	defer rows.Close()

	var results []domain.RetrievalResult
	for rows.Next() {
		var (
			r       domain.RetrievalResult
			blob    []byte
			created int64
		)
		c := &r.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &c.StartOffset, &c.EndOffset,
			&c.Section, &blob, &created, &r.Filename); err != nil {
			return nil, storageErr("scanning chunk", err)
		}
		embedding, err := vectormath.Decode(blob)
		if err != nil {
			return nil, storageErr("decoding embedding", err)
		}
		c.CreatedAt = fromUnix(created)
		r.Score = vectormath.Cosine(vector, embedding)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating chunks", err)
	}

	return vectormath.TopK(results, k), nil
}

// GetDocument retrieves a document by ID.
func (s *vectorStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("reading document", err)
	}
	return doc, nil
}

// ListDocuments returns all documents ordered by upload time then id.
func (s *vectorStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY uploaded_at, id")
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

// DeleteDocument removes a document; chunks go with it through ON DELETE CASCADE.
func (s *vectorStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return storageErr("deleting document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Stats summarises the stored corpus.
func (s *vectorStore) Stats(ctx context.Context) (*domain.CorpusStats, error) {
	stats := &domain.CorpusStats{ByStatus: make(map[domain.DocumentStatus]int)}

	rows, err := s.store.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM documents GROUP BY status")
	if err != nil {
		return nil, storageErr("counting documents", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageErr("scanning counts", err)
		}
		stats.ByStatus[domain.DocumentStatus(status)] = n
		stats.Documents += n
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating counts", err)
	}

	var last sql.NullInt64
	err = s.store.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM chunks),
		       (SELECT MAX(updated_at) FROM documents WHERE status = ?)
	`, string(domain.StatusEmbedded)).Scan(&stats.Chunks, &last)
	if err != nil {
		return nil, storageErr("counting chunks", err)
	}
	if last.Valid {
		stats.LastIngestedAt = fromUnix(last.Int64)
	}
	return stats, nil
}

// Ping checks the database is reachable.
func (s *vectorStore) Ping(ctx context.Context) error {
	if err := s.store.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Close is a no-op; the owning Store closes the database.
func (s *vectorStore) Close() error {
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc               domain.Document
		status            string
		uploaded, updated int64
	)
	if err := row.Scan(&doc.ID, &doc.Filename, &status, &doc.TextLength, &doc.PageCount,
		&doc.ChunkCount, &doc.Error, &uploaded, &updated); err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.UploadedAt = fromUnix(uploaded)
	doc.UpdatedAt = fromUnix(updated)
	return &doc, nil
}

// ==================== Conversation Store ====================

// conversationStore implements driven.ConversationStore.
type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

// Append records turns in one transaction.
func (s *conversationStore) Append(ctx context.Context, turns ...domain.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range turns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_turns (session_id, ordinal, role, text, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, t.SessionID, t.Ordinal, string(t.Role), t.Text, toUnix(t.Timestamp)); err != nil {
			return storageErr("saving turn", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing transaction", err)
	}
	return nil
}

// Load returns a session's turns, oldest first.
func (s *conversationStore) Load(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT ordinal, role, text, created_at FROM conversation_turns
		WHERE session_id = ? ORDER BY ordinal
	`, sessionID)
	if err != nil {
		return nil, storageErr("loading turns", err)
	}
	defer rows.Close()

	var turns []domain.ConversationTurn
	for rows.Next() {
		t := domain.ConversationTurn{SessionID: sessionID}
		var role string
		var created int64
		if err := rows.Scan(&t.Ordinal, &role, &t.Text, &created); err != nil {
			return nil, storageErr("scanning turn", err)
		}
		t.Role = domain.Role(role)
		t.Timestamp = fromUnix(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating turns", err)
	}
	return turns, nil
}

// DeleteBefore removes turns with an ordinal below the given one.
func (s *conversationStore) DeleteBefore(ctx context.Context, sessionID string, ordinal int64) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM conversation_turns WHERE session_id = ? AND ordinal < ?", sessionID, ordinal)
	if err != nil {
		return storageErr("deleting turns", err)
	}
	return nil
}

// Sessions lists the ids of stored sessions, sorted.
func (s *conversationStore) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT DISTINCT session_id FROM conversation_turns ORDER BY session_id")
	if err != nil {
		return nil, storageErr("listing sessions", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scanning session", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating sessions", err)
	}
	return ids, nil
}

// Close is a no-op; the owning Store closes the database.
func (s *conversationStore) Close() error {
	return nil
}
