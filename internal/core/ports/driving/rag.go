package driving

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// RAGService answers questions about the ingested documents.
type RAGService interface {
	// Ask answers query in the context of the session's history.
	// History is only extended when an answer is produced.
	// Callers show domain.UserMessage(err) on failure.
	Ask(ctx context.Context, sessionID, query string) (*domain.Answer, error)
}
