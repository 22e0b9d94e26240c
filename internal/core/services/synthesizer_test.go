package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

func result(docID, filename, section, content string, ordinal int) domain.RetrievalResult {
	return domain.RetrievalResult{
		Chunk: domain.Chunk{
			ID:         docID + "-" + content,
			DocumentID: docID,
			Ordinal:    ordinal,
			Content:    content,
			Section:    section,
		},
		Score:    0.9,
		Filename: filename,
	}
}

func turn(role domain.Role, text string, ordinal int64) domain.ConversationTurn {
	return domain.ConversationTurn{SessionID: "chat-1", Role: role, Text: text, Ordinal: ordinal}
}

func newTestSynthesizer(llm *mockLLMService, settings domain.SynthesisSettings) *Synthesizer {
	prompts := &mockPromptStore{prompts: map[string]string{
		driven.PromptChatSystem: "You answer from documents.",
		driven.PromptNoEvidence: "Nothing relevant was found.",
	}}
	return NewSynthesizer(llm, prompts, noRetry(3), settings, domain.LLMSettings{MaxTokens: 500, Temperature: 0.7})
}

func TestSynthesizer_PromptLayout(t *testing.T) {
	llm := &mockLLMService{reply: "  Photosynthesis turns light into energy.  "}
	s := newTestSynthesizer(llm, domain.SynthesisSettings{MaxPromptTokens: 6000, MaxHistoryTokens: 1500})

	chunks := []domain.RetrievalResult{
		result("doc-1", "biology.pdf", "Chapter 2", "Plants convert light.", 0),
		result("doc-2", "notes.pdf", "", "Chlorophyll absorbs light.", 3),
		result("doc-1", "biology.pdf", "Chapter 2", "Oxygen is released.", 1),
	}
	history := []domain.ConversationTurn{
		turn(domain.RoleUser, "What do plants need?", 1),
		turn(domain.RoleAssistant, "Light and water.", 2),
	}

	answer, err := s.Synthesize(context.Background(), "How does photosynthesis work?", chunks, history)
	require.NoError(t, err)

	assert.Equal(t, "Photosynthesis turns light into energy.", answer.Text)
	assert.Equal(t, []string{"biology.pdf", "notes.pdf"}, answer.Citations)
	assert.Len(t, answer.Evidence, 3)

	msgs := llm.lastMessages()
	require.Len(t, msgs, 7)
	assert.Equal(t, driven.ChatMessage{Role: driven.RoleSystem, Content: "You answer from documents."}, msgs[0])
	assert.Equal(t, driven.RoleSystem, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "[1] biology.pdf (Chapter 2)\nPlants convert light.")
	assert.Contains(t, msgs[1].Content, "[2] notes.pdf\nChlorophyll absorbs light.")
	assert.Contains(t, msgs[1].Content, "[3] biology.pdf (Chapter 2)\nOxygen is released.")
	assert.Equal(t, historyStart, msgs[2].Content)
	assert.Equal(t, driven.ChatMessage{Role: driven.RoleUser, Content: "What do plants need?"}, msgs[3])
	assert.Equal(t, driven.ChatMessage{Role: driven.RoleAssistant, Content: "Light and water."}, msgs[4])
	assert.Equal(t, historyEnd, msgs[5].Content)
	assert.Equal(t, driven.ChatMessage{Role: driven.RoleUser, Content: "How does photosynthesis work?"}, msgs[6])

	assert.Equal(t, driven.CompletionOptions{MaxTokens: 500, Temperature: 0.7}, llm.opts)
}

func TestSynthesizer_NoEvidence(t *testing.T) {
	llm := &mockLLMService{reply: "I could not find that in your documents."}
	s := newTestSynthesizer(llm, domain.SynthesisSettings{MaxPromptTokens: 6000, MaxHistoryTokens: 1500})

	answer, err := s.Synthesize(context.Background(), "Who won the match?", nil, nil)
	require.NoError(t, err)

	assert.Empty(t, answer.Citations)
	msgs := llm.lastMessages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Nothing relevant was found.", msgs[1].Content)
}

func TestSynthesizer_FallsBackToBuiltInPrompts(t *testing.T) {
	llm := &mockLLMService{reply: "ok"}
	s := NewSynthesizer(llm, nil, noRetry(1), domain.SynthesisSettings{MaxPromptTokens: 6000}, domain.LLMSettings{})

	_, err := s.Synthesize(context.Background(), "question", nil, nil)
	require.NoError(t, err)

	msgs := llm.lastMessages()
	assert.Equal(t, defaultSystemPrompt, msgs[0].Content)
	assert.Equal(t, defaultNoEvidence, msgs[1].Content)
}

func TestSynthesizer_HistoryBudgetKeepsNewestTurns(t *testing.T) {
	s := newTestSynthesizer(&mockLLMService{}, domain.SynthesisSettings{MaxPromptTokens: 6000, MaxHistoryTokens: 10})
	history := []domain.ConversationTurn{
		turn(domain.RoleUser, strings.Repeat("a", 40), 1),      // 10 tokens
		turn(domain.RoleAssistant, strings.Repeat("b", 20), 2), // 5 tokens
		turn(domain.RoleUser, strings.Repeat("c", 20), 3),      // 5 tokens
	}

	p := s.fit("question", nil, history)

	assert.Equal(t, []int64{2, 3}, ordinals(p.history))
}

func TestSynthesizer_DropsHistoryBeforeChunks(t *testing.T) {
	chunks := []domain.RetrievalResult{
		result("doc-1", "a.pdf", "", strings.Repeat("x", 200), 0),
		result("doc-2", "b.pdf", "", strings.Repeat("y", 200), 0),
	}
	history := []domain.ConversationTurn{
		turn(domain.RoleUser, strings.Repeat("h", 100), 1),
		turn(domain.RoleAssistant, strings.Repeat("i", 100), 2),
	}

	unbounded := newTestSynthesizer(&mockLLMService{}, domain.SynthesisSettings{MaxHistoryTokens: 1000})
	withoutHistory := unbounded.fit("question", chunks, nil).tokens()

	s := newTestSynthesizer(&mockLLMService{}, domain.SynthesisSettings{MaxPromptTokens: withoutHistory, MaxHistoryTokens: 1000})
	p := s.fit("question", chunks, history)
	assert.Empty(t, p.history)
	assert.Len(t, p.chunks, 2)

	s = newTestSynthesizer(&mockLLMService{}, domain.SynthesisSettings{MaxPromptTokens: withoutHistory - 1, MaxHistoryTokens: 1000})
	p = s.fit("question", chunks, history)
	assert.Empty(t, p.history)
	require.Len(t, p.chunks, 1)
	assert.Equal(t, "doc-1", p.chunks[0].Chunk.DocumentID)
}

func TestSynthesizer_TruncatesSingleChunk(t *testing.T) {
	content := strings.Repeat("é", 400)
	chunks := []domain.RetrievalResult{result("doc-1", "a.pdf", "", content, 0)}

	unbounded := newTestSynthesizer(&mockLLMService{}, domain.SynthesisSettings{})
	empty := []domain.RetrievalResult{result("doc-1", "a.pdf", "", "", 0)}
	overhead := unbounded.fit("question", empty, nil).tokens()

	budget := overhead + 20
	s := newTestSynthesizer(&mockLLMService{}, domain.SynthesisSettings{MaxPromptTokens: budget})
	p := s.fit("question", chunks, nil)

	require.Len(t, p.chunks, 1)
	truncated := p.chunks[0].Chunk.Content
	assert.Positive(t, utf8.RuneCountInString(truncated))
	assert.Less(t, utf8.RuneCountInString(truncated), 400)
	assert.True(t, utf8.ValidString(truncated))
	assert.LessOrEqual(t, p.tokens(), budget)
	assert.Equal(t, content, chunks[0].Chunk.Content, "caller's chunk must not be modified")
}

func TestSynthesizer_RetriesTransientFailure(t *testing.T) {
	llm := &mockLLMService{reply: "answer", failures: []error{domain.ErrRateLimited}}
	s := newTestSynthesizer(llm, domain.SynthesisSettings{MaxPromptTokens: 6000})

	answer, err := s.Synthesize(context.Background(), "question", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Text)
	assert.Equal(t, 2, llm.calls)
}

func TestSynthesizer_GenerationFailures(t *testing.T) {
	tests := []struct {
		name string
		llm  *mockLLMService
	}{
		{"permanent error", &mockLLMService{failures: []error{errors.New("invalid model")}}},
		{"empty completion", &mockLLMService{reply: "   "}},
		{"retries exhausted", &mockLLMService{failures: []error{
			domain.ErrProviderTransient, domain.ErrProviderTransient, domain.ErrProviderTransient,
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSynthesizer(tt.llm, domain.SynthesisSettings{MaxPromptTokens: 6000})

			answer, err := s.Synthesize(context.Background(), "question", nil, nil)

			assert.Nil(t, answer)
			assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
		})
	}
}
