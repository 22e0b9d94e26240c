package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// mockEmbeddingService returns vectors from vectorFor, or a constant vector.
// Errors queued in failures are returned by successive calls first.
type mockEmbeddingService struct {
	mu        sync.Mutex
	dims      int
	maxBatch  int
	vectorFor func(text string) []float32
	failures  []error
	batches   [][]string
	pingErr   error
}

func newMockEmbedding() *mockEmbeddingService {
	return &mockEmbeddingService{dims: 3, maxBatch: 100}
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.batches = append(m.batches, slices.Clone(texts))
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.vectorFor != nil {
			out[i] = m.vectorFor(text)
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

func (m *mockEmbeddingService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *mockEmbeddingService) Dimensions() int              { return m.dims }
func (m *mockEmbeddingService) MaxBatchSize() int            { return m.maxBatch }
func (m *mockEmbeddingService) ModelName() string            { return "mock-embed" }
func (m *mockEmbeddingService) Ping(_ context.Context) error { return m.pingErr }
func (m *mockEmbeddingService) Close() error                 { return nil }

// mockLLMService replies with reply, after returning the queued failures.
type mockLLMService struct {
	mu       sync.Mutex
	reply    string
	failures []error
	calls    int
	messages [][]driven.ChatMessage
	opts     driven.CompletionOptions
	pingErr  error
}

func (m *mockLLMService) Complete(
	_ context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions,
) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.messages = append(m.messages, slices.Clone(messages))
	m.opts = opts
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return "", err
	}
	return m.reply, nil
}

func (m *mockLLMService) lastMessages() []driven.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

func (m *mockLLMService) ModelName() string            { return "mock-llm" }
func (m *mockLLMService) Ping(_ context.Context) error { return m.pingErr }
func (m *mockLLMService) Close() error                 { return nil }

// mockExtractor returns a fixed extraction result.
type mockExtractor struct {
	text  string
	pages int
	err   error
}

func (m *mockExtractor) Extract(_ context.Context, _ []byte) (*domain.ExtractedText, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ExtractedText{
		Pages:     []domain.PageText{{Number: 1, Text: m.text}},
		PageCount: m.pages,
		Text:      m.text,
	}, nil
}

// mockPromptStore serves prompts from a map.
type mockPromptStore struct {
	prompts map[string]string
}

func (m *mockPromptStore) Load(name string) (string, error) {
	p, ok := m.prompts[name]
	if !ok {
		return "", errors.New("no such prompt")
	}
	return p, nil
}

func (m *mockPromptStore) Reload() {}

// mockConversationStore wraps a real store and fails on demand.
type mockConversationStore struct {
	driven.ConversationStore
	appendErr error
	loadErr   error
}

func (m *mockConversationStore) Append(ctx context.Context, turns ...domain.ConversationTurn) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	return m.ConversationStore.Append(ctx, turns...)
}

func (m *mockConversationStore) Load(ctx context.Context, id string) ([]domain.ConversationTurn, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.ConversationStore.Load(ctx, id)
}

// mockAIValidator records validation calls.
type mockAIValidator struct {
	embedErr error
	llmErr   error
}

func (m *mockAIValidator) ValidateEmbedding(_ *domain.EmbeddingSettings) error { return m.embedErr }
func (m *mockAIValidator) ValidateLLM(_ *domain.LLMSettings) error             { return m.llmErr }

// noRetry is a policy that never waits.
func noRetry(attempts int) *RetryPolicy {
	p := NewRetryPolicy(domain.RetrySettings{MaxAttempts: attempts})
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}
