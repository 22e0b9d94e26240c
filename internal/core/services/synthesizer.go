package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Built-in prompts used when no prompt store is configured or a template
// cannot be read.
const (
	defaultSystemPrompt = `You are a helpful assistant that answers questions about the user's documents.
Answer in the language of the question. Base your answer on the document excerpts provided.
If the excerpts do not contain the answer, say so clearly and offer what you can explain.
Use the conversation history for continuity; when it contradicts the excerpts, trust the excerpts.
Cite excerpts by their [n] marker.`

	defaultNoEvidence = "No relevant information was found in the processed documents."

	historyStart = "=== Conversation history ==="
	historyEnd   = "=== End of history. Answer the new question ==="
)

// Synthesizer builds the prompt for a question and asks the LLM for an answer.
//
// The prompt is the system instruction, the evidence block, the recent
// history and the question. When it exceeds the prompt budget, history is
// dropped oldest first, then chunks from the tail; a single remaining
// chunk is truncated to fit.
type Synthesizer struct {
	llm      driven.LLMService
	prompts  driven.PromptStore
	retry    *RetryPolicy
	settings domain.SynthesisSettings
	opts     driven.CompletionOptions
}

// NewSynthesizer creates a synthesizer. The prompt store is optional.
func NewSynthesizer(
	llm driven.LLMService,
	prompts driven.PromptStore,
	retry *RetryPolicy,
	settings domain.SynthesisSettings,
	llmSettings domain.LLMSettings,
) *Synthesizer {
	return &Synthesizer{
		llm:      llm,
		prompts:  prompts,
		retry:    retry,
		settings: settings,
		opts: driven.CompletionOptions{
			MaxTokens:   llmSettings.MaxTokens,
			Temperature: llmSettings.Temperature,
		},
	}
}

// Synthesize answers query from the ranked chunks and the session history.
func (s *Synthesizer) Synthesize(
	ctx context.Context, query string, chunks []domain.RetrievalResult, history []domain.ConversationTurn,
) (*domain.Answer, error) {
	p := s.fit(query, chunks, history)
	messages := p.messages()

	logger.Debug("synthesize: %d chunks, %d history turns, ~%d prompt tokens",
		len(p.chunks), len(p.history), p.tokens())

	var text string
	err := s.retry.Do(ctx, "complete", func(ctx context.Context) error {
		var err error
		text, err = s.llm.Complete(ctx, messages, s.opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty completion", domain.ErrGenerationUnavailable)
	}

	return &domain.Answer{
		Text:      text,
		Citations: citations(p.chunks),
		Evidence:  p.chunks,
	}, nil
}

// fit assembles the prompt within the configured budgets.
func (s *Synthesizer) fit(
	query string, chunks []domain.RetrievalResult, history []domain.ConversationTurn,
) *prompt {
	p := &prompt{
		system:     s.load(driven.PromptChatSystem, defaultSystemPrompt),
		noEvidence: s.load(driven.PromptNoEvidence, defaultNoEvidence),
		query:      query,
		chunks:     append([]domain.RetrievalResult(nil), chunks...),
		history:    recentHistory(history, s.settings.MaxHistoryTokens),
	}

	budget := s.settings.MaxPromptTokens
	if budget <= 0 {
		return p
	}

	for p.tokens() > budget && len(p.history) > 0 {
		p.history = p.history[1:]
	}
	for p.tokens() > budget && len(p.chunks) > 1 {
		p.chunks = p.chunks[:len(p.chunks)-1]
	}
	for len(p.chunks) == 1 {
		over := p.tokens() - budget
		if over <= 0 {
			break
		}
		c := &p.chunks[0].Chunk
		keep := utf8.RuneCountInString(c.Content) - over*4
		if keep <= 0 {
			p.chunks = nil
			break
		}
		c.Content = truncateRunes(c.Content, keep)
	}
	return p
}

func (s *Synthesizer) load(name, fallback string) string {
	if s.prompts == nil {
		return fallback
	}
	text, err := s.prompts.Load(name)
	if err != nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

// prompt is the material of one completion request.
type prompt struct {
	system     string
	noEvidence string
	query      string
	chunks     []domain.RetrievalResult
	history    []domain.ConversationTurn
}

func (p *prompt) evidence() string {
	if len(p.chunks) == 0 {
		return p.noEvidence
	}
	var b strings.Builder
	b.WriteString("Document excerpts:\n")
	for i, c := range p.chunks {
		fmt.Fprintf(&b, "\n[%d] %s", i+1, c.Filename)
		if c.Chunk.Section != "" {
			fmt.Fprintf(&b, " (%s)", c.Chunk.Section)
		}
		b.WriteString("\n")
		b.WriteString(c.Chunk.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (p *prompt) messages() []driven.ChatMessage {
	msgs := []driven.ChatMessage{
		{Role: driven.RoleSystem, Content: p.system},
		{Role: driven.RoleSystem, Content: p.evidence()},
	}
	if len(p.history) > 0 {
		msgs = append(msgs, driven.ChatMessage{Role: driven.RoleSystem, Content: historyStart})
		for _, t := range p.history {
			role := driven.RoleUser
			if t.Role == domain.RoleAssistant {
				role = driven.RoleAssistant
			}
			msgs = append(msgs, driven.ChatMessage{Role: role, Content: t.Text})
		}
		msgs = append(msgs, driven.ChatMessage{Role: driven.RoleSystem, Content: historyEnd})
	}
	return append(msgs, driven.ChatMessage{Role: driven.RoleUser, Content: p.query})
}

func (p *prompt) tokens() int {
	n := 0
	for _, m := range p.messages() {
		n += domain.EstimateTokens(m.Content)
	}
	return n
}

// recentHistory keeps the newest turns whose combined size fits budget.
// A zero budget keeps no history.
func recentHistory(history []domain.ConversationTurn, budget int) []domain.ConversationTurn {
	used := 0
	start := len(history)
	for start > 0 {
		cost := domain.EstimateTokens(history[start-1].Text)
		if used+cost > budget {
			break
		}
		used += cost
		start--
	}
	return history[start:]
}

// citations returns the distinct filenames of the included chunks, in rank order.
func citations(chunks []domain.RetrievalResult) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range chunks {
		if !seen[c.Filename] {
			seen[c.Filename] = true
			out = append(out, c.Filename)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
