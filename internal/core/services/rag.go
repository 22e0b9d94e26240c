package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure RAGService implements the interface.
var _ driving.RAGService = (*RAGService)(nil)

// RAGService answers questions: retrieve, read history, synthesize, and
// only then record the exchange.
type RAGService struct {
	retriever     *Retriever
	conversations *ConversationManager
	synthesizer   *Synthesizer
	k             int
}

// NewRAGService creates the question answering service.
func NewRAGService(
	retriever *Retriever,
	conversations *ConversationManager,
	synthesizer *Synthesizer,
	k int,
) *RAGService {
	return &RAGService{
		retriever:     retriever,
		conversations: conversations,
		synthesizer:   synthesizer,
		k:             k,
	}
}

// Ask answers query for the session. History is left unchanged on failure.
func (s *RAGService) Ask(ctx context.Context, sessionID, query string) (*domain.Answer, error) {
	logger.Section("Ask")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, s.fail(sessionID, "validate", fmt.Errorf("%w: question is empty", domain.ErrInvalidInput))
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, s.fail(sessionID, "validate", fmt.Errorf("%w: session id is empty", domain.ErrInvalidInput))
	}

	results, err := s.retriever.Retrieve(ctx, query, s.k)
	if err != nil {
		return nil, s.fail(sessionID, "retrieve", err)
	}
	logger.Debug("ask: %d chunks retrieved for session %s", len(results), sessionID)

	history, err := s.conversations.History(ctx, sessionID)
	if err != nil {
		return nil, s.fail(sessionID, "history", err)
	}

	answer, err := s.synthesizer.Synthesize(ctx, query, results, history)
	if err != nil {
		return nil, s.fail(sessionID, "synthesize", err)
	}

	if err := s.conversations.AppendExchange(ctx, sessionID, query, answer.Text); err != nil {
		// The answer is still delivered; only its history record is lost.
		logger.Warn("ask: session %s: recording exchange failed (%s): %v", sessionID, domain.ErrorKind(err), err)
	}

	logger.Info("ask: session %s answered with %d citations", sessionID, len(answer.Citations))
	return answer, nil
}

func (s *RAGService) fail(sessionID, stage string, err error) error {
	logger.Warn("ask: session %s: %s failed (%s): %v", sessionID, stage, domain.ErrorKind(err), err)
	return fmt.Errorf("ask: %s: %w", stage, err)
}
