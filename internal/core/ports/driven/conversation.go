package driven

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// ConversationStore durably mirrors session history.
// The conversation manager remains the source of truth for retention;
// the store only records what the manager keeps.
type ConversationStore interface {
	// Append records turns. Turns of one call belong to the same session.
	Append(ctx context.Context, turns ...domain.ConversationTurn) error

	// Load returns a session's stored turns, oldest first.
	Load(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)

	// DeleteBefore removes a session's turns with an ordinal below the given one.
	DeleteBefore(ctx context.Context, sessionID string, ordinal int64) error

	// Sessions lists the ids of stored sessions, sorted.
	Sessions(ctx context.Context) ([]string, error)

	// Close releases resources.
	Close() error
}
