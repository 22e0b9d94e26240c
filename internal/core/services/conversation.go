package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure ConversationManager implements the interface.
var _ driving.ConversationService = (*ConversationManager)(nil)

// ConversationManager keeps bounded per-session history.
//
// Each session has its own lock; the registry lock is only held while a
// session record is looked up or created. When a store is configured,
// turns are written there before they become visible in memory, and a
// session is loaded from the store on first access. Only sessions with
// turns are kept in the registry.
type ConversationManager struct {
	store    driven.ConversationStore
	settings domain.ConversationSettings
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu          sync.Mutex
	loaded      bool
	turns       []domain.ConversationTurn
	tokens      int
	lastOrdinal int64
}

// NewConversationManager creates a conversation manager.
// The store is optional; without it history lives in memory only.
func NewConversationManager(store driven.ConversationStore, settings domain.ConversationSettings) *ConversationManager {
	return &ConversationManager{
		store:    store,
		settings: settings,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Append records one turn and returns it with its ordinal and timestamp.
func (m *ConversationManager) Append(
	ctx context.Context, sessionID string, role domain.Role, text string,
) (domain.ConversationTurn, error) {
	if !role.IsValid() {
		return domain.ConversationTurn{}, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, role)
	}
	turns, err := m.append(ctx, sessionID, []domain.Role{role}, []string{text})
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	return turns[0], nil
}

// AppendExchange records a question and its answer under one session lock,
// so no other turn of the session can land between them.
func (m *ConversationManager) AppendExchange(ctx context.Context, sessionID, userText, assistantText string) error {
	_, err := m.append(ctx, sessionID,
		[]domain.Role{domain.RoleUser, domain.RoleAssistant},
		[]string{userText, assistantText})
	return err
}

func (m *ConversationManager) append(
	ctx context.Context, sessionID string, roles []domain.Role, texts []string,
) ([]domain.ConversationTurn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is empty", domain.ErrInvalidInput)
	}

	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := m.load(ctx, sessionID, s); err != nil {
		return nil, err
	}

	now := m.now()
	turns := make([]domain.ConversationTurn, len(roles))
	for i := range roles {
		turns[i] = domain.ConversationTurn{
			SessionID: sessionID,
			Role:      roles[i],
			Text:      texts[i],
			Timestamp: now,
			Ordinal:   s.lastOrdinal + int64(i) + 1,
		}
	}

	if m.store != nil {
		if err := m.store.Append(ctx, turns...); err != nil {
			return nil, fmt.Errorf("append turns: %w", err)
		}
	}

	for _, t := range turns {
		s.turns = append(s.turns, t)
		s.tokens += domain.EstimateTokens(t.Text)
	}
	s.lastOrdinal = turns[len(turns)-1].Ordinal

	if m.evict(s) {
		m.trimStore(ctx, sessionID, s)
	}
	return turns, nil
}

// History returns the session's retained turns within the max age window, oldest first.
func (m *ConversationManager) History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	s, err := m.lockedSession(ctx, sessionID)
	if err != nil || s == nil {
		return nil, err
	}
	defer s.mu.Unlock()

	if m.settings.MaxAge <= 0 {
		return slices.Clone(s.turns), nil
	}
	cutoff := m.now().Add(-m.settings.MaxAge)
	var out []domain.ConversationTurn
	for _, t := range s.turns {
		if !t.Timestamp.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Stats summarises the session's activity.
func (m *ConversationManager) Stats(ctx context.Context, sessionID string) (*domain.SessionStats, error) {
	stats := &domain.SessionStats{SessionID: sessionID}

	s, err := m.lockedSession(ctx, sessionID)
	if err != nil || s == nil {
		return stats, err
	}
	defer s.mu.Unlock()

	stats.TotalTurns = s.lastOrdinal
	stats.RetainedTurns = len(s.turns)
	if len(s.turns) > 0 {
		stats.LastTurnAt = s.turns[len(s.turns)-1].Timestamp
	}

	window := m.settings.RecentWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := m.now().Add(-window)
	for _, t := range s.turns {
		if !t.Timestamp.Before(cutoff) {
			stats.RecentTurns++
		}
	}
	return stats, nil
}

// Sessions lists the ids of sessions held in memory or in the store, sorted.
func (m *ConversationManager) Sessions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	if m.store != nil {
		stored, err := m.store.Sessions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		ids = append(ids, stored...)
	}

	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// session returns the session record, creating it if needed.
func (m *ConversationManager) session(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &session{}
		m.sessions[id] = s
	}
	return s
}

// lockedSession returns the loaded session with its lock held, or nil when
// the session has no turns in memory or in the store. Unknown sessions are
// not registered, so reads cannot grow the registry.
func (m *ConversationManager) lockedSession(ctx context.Context, id string) (*session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		if err := m.load(ctx, id, s); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		return s, nil
	}

	if m.store == nil {
		return nil, nil
	}
	turns, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if len(turns) == 0 {
		return nil, nil
	}

	s = m.session(id)
	s.mu.Lock()
	if !s.loaded {
		m.fill(ctx, id, s, turns)
	}
	return s, nil
}

// load fills the session from the store once. Caller holds s.mu.
func (m *ConversationManager) load(ctx context.Context, id string, s *session) error {
	if s.loaded {
		return nil
	}
	if m.store == nil {
		s.loaded = true
		return nil
	}
	turns, err := m.store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	m.fill(ctx, id, s, turns)
	return nil
}

// fill installs stored turns into an unloaded session. Caller holds s.mu.
func (m *ConversationManager) fill(ctx context.Context, id string, s *session, turns []domain.ConversationTurn) {
	s.turns = turns
	s.tokens = 0
	for _, t := range turns {
		s.tokens += domain.EstimateTokens(t.Text)
		s.lastOrdinal = max(s.lastOrdinal, t.Ordinal)
	}
	if m.evict(s) {
		m.trimStore(ctx, id, s)
	}
	s.loaded = true
	logger.Debug("conversation: loaded %d turns for session %s", len(turns), id)
}

// evict drops the oldest turns until the session fits its budgets,
// always keeping the newest turn. Caller holds s.mu.
func (m *ConversationManager) evict(s *session) bool {
	evicted := 0
	for len(s.turns)-evicted > 1 && m.overBudget(len(s.turns)-evicted, s.tokens) {
		s.tokens -= domain.EstimateTokens(s.turns[evicted].Text)
		evicted++
	}
	if evicted == 0 {
		return false
	}
	s.turns = slices.Delete(s.turns, 0, evicted)
	return true
}

func (m *ConversationManager) overBudget(turns, tokens int) bool {
	if m.settings.MaxTurns > 0 && turns > m.settings.MaxTurns {
		return true
	}
	return m.settings.MaxTokens > 0 && tokens > m.settings.MaxTokens
}

// trimStore mirrors eviction to the store. Failures only leave extra
// rows behind, which the next load evicts again.
func (m *ConversationManager) trimStore(ctx context.Context, id string, s *session) {
	if m.store == nil || len(s.turns) == 0 {
		return
	}
	if err := m.store.DeleteBefore(ctx, id, s.turns[0].Ordinal); err != nil {
		logger.Warn("conversation: trimming stored history for %s failed (%s): %v", id, domain.ErrorKind(err), err)
	}
}
