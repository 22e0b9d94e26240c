package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

func ordinals(turns []domain.ConversationTurn) []int64 {
	out := make([]int64, len(turns))
	for i, t := range turns {
		out[i] = t.Ordinal
	}
	return out
}

func TestConversationManager_AssignsIncreasingOrdinals(t *testing.T) {
	m := NewConversationManager(nil, domain.ConversationSettings{})
	ctx := context.Background()

	first, err := m.Append(ctx, "chat-1", domain.RoleUser, "hello")
	require.NoError(t, err)
	require.NoError(t, m.AppendExchange(ctx, "chat-1", "question", "answer"))

	history, err := m.History(ctx, "chat-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Ordinal)
	assert.Equal(t, []int64{1, 2, 3}, ordinals(history))
	assert.Equal(t, domain.RoleUser, history[1].Role)
	assert.Equal(t, domain.RoleAssistant, history[2].Role)
}

func TestConversationManager_EvictsOldestTurns(t *testing.T) {
	m := NewConversationManager(nil, domain.ConversationSettings{MaxTurns: 3})
	ctx := context.Background()

	for i := range 5 {
		_, err := m.Append(ctx, "chat-1", domain.RoleUser, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	history, err := m.History(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, ordinals(history))

	stats, err := m.Stats(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalTurns)
	assert.Equal(t, 3, stats.RetainedTurns)
}

func TestConversationManager_TokenBudgetKeepsNewestTurn(t *testing.T) {
	m := NewConversationManager(nil, domain.ConversationSettings{MaxTokens: 5})
	ctx := context.Background()

	_, err := m.Append(ctx, "chat-1", domain.RoleUser, "short")
	require.NoError(t, err)
	_, err = m.Append(ctx, "chat-1", domain.RoleAssistant, strings.Repeat("x", 80))
	require.NoError(t, err)

	history, err := m.History(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(2), history[0].Ordinal)
}

func TestConversationManager_MaxAgeHidesOldTurns(t *testing.T) {
	m := NewConversationManager(nil, domain.ConversationSettings{MaxAge: time.Hour, RecentWindow: time.Hour})
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	_, err := m.Append(ctx, "chat-1", domain.RoleUser, "old")
	require.NoError(t, err)
	clock = clock.Add(2 * time.Hour)
	_, err = m.Append(ctx, "chat-1", domain.RoleUser, "new")
	require.NoError(t, err)

	history, err := m.History(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "new", history[0].Text)

	stats, err := m.Stats(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RetainedTurns)
	assert.Equal(t, 1, stats.RecentTurns)
	assert.Equal(t, clock, stats.LastTurnAt)
}

func TestConversationManager_UnknownSession(t *testing.T) {
	m := NewConversationManager(nil, domain.ConversationSettings{})

	history, err := m.History(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, history)

	stats, err := m.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTurns)
	assert.True(t, stats.LastTurnAt.IsZero())
}

func TestConversationManager_ReadsDoNotRegisterUnknownSessions(t *testing.T) {
	tests := []struct {
		name  string
		store driven.ConversationStore
	}{
		{"in memory", nil},
		{"with store", memory.NewConversationStore()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewConversationManager(tt.store, domain.ConversationSettings{})
			ctx := context.Background()

			for i := range 50 {
				id := fmt.Sprintf("visitor-%d", i)
				history, err := m.History(ctx, id)
				require.NoError(t, err)
				assert.Empty(t, history)

				stats, err := m.Stats(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, id, stats.SessionID)
				assert.Zero(t, stats.TotalTurns)
			}

			m.mu.Lock()
			assert.Empty(t, m.sessions)
			m.mu.Unlock()

			sessions, err := m.Sessions(ctx)
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}
}

func TestConversationManager_ReadRegistersStoredSession(t *testing.T) {
	store := memory.NewConversationStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx,
		domain.ConversationTurn{SessionID: "chat-1", Role: domain.RoleUser, Text: "q", Ordinal: 1, Timestamp: time.Now()},
		domain.ConversationTurn{SessionID: "chat-1", Role: domain.RoleAssistant, Text: "a", Ordinal: 2, Timestamp: time.Now()},
	))

	m := NewConversationManager(store, domain.ConversationSettings{})
	stats, err := m.Stats(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTurns)

	m.mu.Lock()
	assert.Len(t, m.sessions, 1)
	m.mu.Unlock()

	turn, err := m.Append(ctx, "chat-1", domain.RoleUser, "next")
	require.NoError(t, err)
	assert.Equal(t, int64(3), turn.Ordinal)
}

func TestConversationManager_RejectsInvalidInput(t *testing.T) {
	m := NewConversationManager(nil, domain.ConversationSettings{})

	_, err := m.Append(context.Background(), "", domain.RoleUser, "hi")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Append(context.Background(), "chat-1", domain.Role("system"), "hi")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConversationManager_MirrorsToStore(t *testing.T) {
	store := memory.NewConversationStore()
	settings := domain.ConversationSettings{MaxTurns: 3}
	ctx := context.Background()

	m := NewConversationManager(store, settings)
	for i := range 5 {
		_, err := m.Append(ctx, "chat-1", domain.RoleUser, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	stored, err := store.Load(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, ordinals(stored))

	// A new manager resumes the session from the store.
	restarted := NewConversationManager(store, settings)
	turn, err := restarted.Append(ctx, "chat-1", domain.RoleUser, "after restart")
	require.NoError(t, err)
	assert.Equal(t, int64(6), turn.Ordinal)

	history, err := restarted.History(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 6}, ordinals(history))
}

func TestConversationManager_StoreFailureLeavesHistoryUnchanged(t *testing.T) {
	store := &mockConversationStore{ConversationStore: memory.NewConversationStore()}
	m := NewConversationManager(store, domain.ConversationSettings{})
	ctx := context.Background()

	require.NoError(t, m.AppendExchange(ctx, "chat-1", "q1", "a1"))

	store.appendErr = fmt.Errorf("%w: disk full", domain.ErrStorage)
	err := m.AppendExchange(ctx, "chat-1", "q2", "a2")
	assert.ErrorIs(t, err, domain.ErrStorage)

	history, err := m.History(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ordinals(history))

	store.appendErr = nil
	require.NoError(t, m.AppendExchange(ctx, "chat-1", "q2", "a2"))
	history, err = m.History(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, ordinals(history))
}

func TestConversationManager_LoadFailure(t *testing.T) {
	store := &mockConversationStore{
		ConversationStore: memory.NewConversationStore(),
		loadErr:           errors.New("corrupt"),
	}
	m := NewConversationManager(store, domain.ConversationSettings{})

	_, err := m.History(context.Background(), "chat-1")
	assert.Error(t, err)

	store.loadErr = nil
	history, err := m.History(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConversationManager_ConcurrentAppends(t *testing.T) {
	m := NewConversationManager(nil, domain.ConversationSettings{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.AppendExchange(ctx, "chat-1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		}()
	}
	wg.Wait()

	history, err := m.History(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, history, 40)
	for i, turn := range history {
		assert.Equal(t, int64(i+1), turn.Ordinal)
		if i%2 == 0 {
			// Each exchange stays adjacent.
			assert.Equal(t, "a"+strings.TrimPrefix(turn.Text, "q"), history[i+1].Text)
		}
	}
}

func TestConversationManager_Sessions(t *testing.T) {
	store := memory.NewConversationStore()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, domain.ConversationTurn{
		SessionID: "stored", Role: domain.RoleUser, Text: "hi", Ordinal: 1, Timestamp: time.Now(),
	}))

	m := NewConversationManager(store, domain.ConversationSettings{})
	_, err := m.Append(ctx, "live", domain.RoleUser, "hello")
	require.NoError(t, err)

	sessions, err := m.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live", "stored"}, sessions)
}
