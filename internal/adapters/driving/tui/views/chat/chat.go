// Package chat provides the question and answer view for the TUI.
package chat

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// DefaultSessionID is the conversation session used by the terminal chat.
const DefaultSessionID = "tui"

// entry is one rendered transcript item.
type entry struct {
	turn      domain.ConversationTurn
	citations []string
	failed    bool
}

// View is the chat view: a transcript, the question input, the evidence of
// the last answer and a status bar.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	prompt    *input.Prompt
	evidence  *list.EvidenceList
	statusbar *status.Bar

	rag           driving.RAGService
	conversations driving.ConversationService
	sessionID     string
	ctx           context.Context
	now           func() time.Time

	transcript   []entry
	busy         bool
	showEvidence bool
	width        int
	height       int
	ready        bool
}

// NewView creates a chat view. conversations may be nil.
func NewView(
	s *styles.Styles,
	km *keymap.KeyMap,
	rag driving.RAGService,
	conversations driving.ConversationService,
) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &View{
		styles:        s,
		keymap:        km,
		prompt:        input.NewPrompt(s),
		evidence:      list.NewEvidenceList(s),
		statusbar:     status.NewBar(s, km),
		rag:           rag,
		conversations: conversations,
		sessionID:     DefaultSessionID,
		ctx:           context.Background(),
		now:           time.Now,
		width:         80,
		height:        24,
	}
}

// WithContext sets the context used for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// WithSession sets the conversation session.
func (v *View) WithSession(sessionID string) *View {
	if sessionID != "" {
		v.sessionID = sessionID
	}
	return v
}

// Init starts the cursor and restores the session history.
func (v *View) Init() tea.Cmd {
	return tea.Batch(v.prompt.Init(), v.loadHistory())
}

func (v *View) loadHistory() tea.Cmd {
	if v.conversations == nil {
		return nil
	}
	svc, ctx, session := v.conversations, v.ctx, v.sessionID
	return func() tea.Msg {
		turns, err := svc.History(ctx, session)
		return messages.HistoryLoaded{Turns: turns, Err: err}
	}
}

// Update handles messages for the chat view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKey(msg)

	case messages.AnswerReceived:
		v.handleAnswer(msg)
		return v, nil

	case messages.HistoryLoaded:
		if msg.Err != nil {
			logger.Warn("tui: loading history: %v", msg.Err)
			return v, nil
		}
		// Only restore into an empty transcript.
		if len(v.transcript) == 0 {
			for _, t := range msg.Turns {
				v.transcript = append(v.transcript, entry{turn: t})
			}
			v.statusbar.SetTurns(len(v.transcript))
		}
		return v, nil

	case messages.ErrorOccurred:
		v.busy = false
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
		return v, nil
	}

	var cmd tea.Cmd
	v.prompt, cmd = v.prompt.Update(msg)
	return v, cmd
}

func (v *View) handleKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch {
	case keymap.Matches(msg.String(), v.keymap.Back):
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}

	case keymap.Matches(msg.String(), v.keymap.Evidence):
		v.toggleEvidence()
		return v, nil

	case v.showEvidence:
		v.evidence, _ = v.evidence.Update(msg)
		return v, nil

	case msg.Type == tea.KeyEnter:
		return v, v.submit()
	}

	var cmd tea.Cmd
	v.prompt, cmd = v.prompt.Update(msg)
	return v, cmd
}

func (v *View) toggleEvidence() {
	v.showEvidence = !v.showEvidence
	if v.showEvidence {
		v.prompt.Blur()
		v.statusbar.SetState(status.StateEvidence)
		return
	}
	v.prompt.Focus()
	v.statusbar.SetState(status.StateReady)
}

// submit sends the typed question. One question is in flight at a time.
func (v *View) submit() tea.Cmd {
	question := v.prompt.Question()
	if question == "" || v.busy {
		return nil
	}

	v.busy = true
	v.prompt.Reset()
	v.transcript = append(v.transcript, entry{turn: domain.ConversationTurn{
		SessionID: v.sessionID,
		Role:      domain.RoleUser,
		Text:      question,
		Timestamp: v.now(),
	}})
	v.statusbar.SetState(status.StateThinking)
	v.statusbar.SetMessage("")
	v.statusbar.SetTurns(len(v.transcript))

	return v.ask(question)
}

func (v *View) ask(question string) tea.Cmd {
	rag, ctx, session := v.rag, v.ctx, v.sessionID
	return func() tea.Msg {
		if rag == nil {
			return messages.AnswerReceived{Question: question, Err: ErrNoRAGService}
		}
		answer, err := rag.Ask(ctx, session, question)
		return messages.AnswerReceived{Question: question, Answer: answer, Err: err}
	}
}

func (v *View) handleAnswer(msg messages.AnswerReceived) {
	v.busy = false

	if msg.Err != nil {
		logger.Warn("tui: question failed (%s): %v", domain.ErrorKind(msg.Err), msg.Err)
		v.transcript = append(v.transcript, entry{
			turn: domain.ConversationTurn{
				SessionID: v.sessionID,
				Role:      domain.RoleAssistant,
				Text:      domain.UserMessage(msg.Err),
				Timestamp: v.now(),
			},
			failed: true,
		})
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(domain.ErrorKind(msg.Err))
		v.statusbar.SetTurns(len(v.transcript))
		return
	}

	v.transcript = append(v.transcript, entry{
		turn: domain.ConversationTurn{
			SessionID: v.sessionID,
			Role:      domain.RoleAssistant,
			Text:      msg.Answer.Text,
			Timestamp: v.now(),
		},
		citations: msg.Answer.Citations,
	})
	v.evidence.SetItems(msg.Answer.Evidence)
	if !v.showEvidence {
		v.statusbar.SetState(status.StateReady)
	}
	v.statusbar.SetMessage("")
	v.statusbar.SetTurns(len(v.transcript))
}

// View renders the chat view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	header := v.styles.Title.Render("ragbot") + "  " + v.styles.Muted.Render("session "+v.sessionID)
	footer := []string{"", v.prompt.View(), "", v.statusbar.View()}

	body := v.renderTranscript(v.bodyHeight())
	if v.showEvidence {
		body = v.evidence.View()
	}

	sections := append([]string{header, "", body}, footer...)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// bodyHeight is the room left for the transcript or evidence.
func (v *View) bodyHeight() int {
	return max(v.height-9, 3)
}

// renderTranscript renders the newest lines of the transcript that fit height.
func (v *View) renderTranscript(height int) string {
	if len(v.transcript) == 0 {
		return v.styles.Muted.Render("Ask a question about your documents.")
	}

	wrap := lipgloss.NewStyle().Width(max(v.width-4, 20))
	var lines []string
	for _, e := range v.transcript {
		label := v.styles.UserTurn.Render("You")
		if e.turn.Role == domain.RoleAssistant {
			label = v.styles.AssistantTurn.Render("Assistant")
		}
		text := wrap.Render(e.turn.Text)
		if e.failed {
			text = v.styles.Error.Render(text)
		}
		lines = append(lines, label)
		lines = append(lines, strings.Split(text, "\n")...)
		if len(e.citations) > 0 {
			lines = append(lines, v.styles.Citation.Render("Sources: "+strings.Join(e.citations, ", ")))
		}
		lines = append(lines, "")
	}
	if v.busy {
		lines = append(lines, v.styles.Muted.Render("..."))
	}

	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	v.prompt.SetWidth(width)
	v.evidence.SetDimensions(width, v.bodyHeight())
	v.statusbar.SetWidth(width)
}

// Reset clears the transcript and returns to input mode.
func (v *View) Reset() {
	v.transcript = nil
	v.busy = false
	v.showEvidence = false
	v.prompt.Reset()
	v.prompt.Focus()
	v.evidence.SetItems(nil)
	v.statusbar.Clear()
}

// Transcript returns the turns shown in the view.
func (v *View) Transcript() []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, len(v.transcript))
	for i, e := range v.transcript {
		out[i] = e.turn
	}
	return out
}

// Evidence returns the evidence of the last answer.
func (v *View) Evidence() []domain.RetrievalResult {
	return v.evidence.Items()
}

// Busy reports whether a question is in flight.
func (v *View) Busy() bool {
	return v.busy
}

// ShowingEvidence reports whether the evidence list has focus.
func (v *View) ShowingEvidence() bool {
	return v.showEvidence
}

// SessionID returns the conversation session of the view.
func (v *View) SessionID() string {
	return v.sessionID
}

// SetInput sets the question input text.
func (v *View) SetInput(text string) {
	v.prompt.SetValue(text)
}

// Ready returns whether the view is ready to render.
func (v *View) Ready() bool {
	return v.ready
}
