// Package sqlite provides the default SQLite-backed implementation of the
// storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database serves:
//
//   - VectorStore: Documents, chunks and their embeddings
//   - ConversationStore: Durable session history
//
// # Vectors
//
// Embeddings are stored as little-endian float32 BLOBs. Similarity is computed
// in Go over the chunks of embedded documents, which is fine for the corpus
// sizes a single bot serves. Use the postgres store for larger corpora.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.ragbot/data/ragbot.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
