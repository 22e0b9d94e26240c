package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure ConversationStore implements the interface.
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is an in-memory implementation of driven.ConversationStore.
type ConversationStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.ConversationTurn
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		sessions: make(map[string][]domain.ConversationTurn),
	}
}

// Append records turns.
func (s *ConversationStore) Append(_ context.Context, turns ...domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, turn := range turns {
		s.sessions[turn.SessionID] = append(s.sessions[turn.SessionID], turn)
	}
	return nil
}

// Load returns a session's turns, oldest first.
func (s *ConversationStore) Load(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sessions[sessionID]), nil
}

// DeleteBefore removes turns with an ordinal below the given one.
func (s *ConversationStore) DeleteBefore(_ context.Context, sessionID string, ordinal int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = slices.DeleteFunc(s.sessions[sessionID], func(t domain.ConversationTurn) bool {
		return t.Ordinal < ordinal
	})
	return nil
}

// Sessions lists the ids of stored sessions, sorted.
func (s *ConversationStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close is a no-op.
func (s *ConversationStore) Close() error {
	return nil
}
