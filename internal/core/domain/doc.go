// Package domain defines the core business entities for ragbot.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded PDF and its ingestion status
//   - Chunk: A bounded text segment, the unit of embedding and retrieval
//   - ConversationTurn: One message in a session's history
//   - Answer: Generated text with the filenames it cites
//   - AppSettings: Validated runtime configuration
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
