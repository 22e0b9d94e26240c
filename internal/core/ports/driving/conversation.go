package driving

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// ConversationService exposes session history.
type ConversationService interface {
	// History returns the session's retained turns, oldest first.
	History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)

	// Stats summarises the session's activity.
	Stats(ctx context.Context, sessionID string) (*domain.SessionStats, error)

	// Sessions lists known session ids.
	Sessions(ctx context.Context) ([]string, error)
}
