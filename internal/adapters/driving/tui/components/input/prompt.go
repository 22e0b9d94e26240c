// Package input provides text input components for the TUI.
package input

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/styles"
)

// MaxQuestionLength bounds the characters accepted in one question.
const MaxQuestionLength = 2000

// Prompt is the single-line question input of the chat view.
type Prompt struct {
	textinput textinput.Model
	styles    *styles.Styles
	width     int
}

// NewPrompt creates a focused question input.
func NewPrompt(s *styles.Styles) *Prompt {
	if s == nil {
		s = styles.DefaultStyles()
	}

	ti := textinput.New()
	ti.Placeholder = "Ask about your documents..."
	ti.CharLimit = MaxQuestionLength
	ti.Width = 60
	ti.Focus()

	return &Prompt{textinput: ti, styles: s, width: 60}
}

// Init starts the cursor blink.
func (p *Prompt) Init() tea.Cmd {
	return textinput.Blink
}

// Update forwards messages to the underlying textinput.
func (p *Prompt) Update(msg tea.Msg) (*Prompt, tea.Cmd) {
	var cmd tea.Cmd
	p.textinput, cmd = p.textinput.Update(msg)
	return p, cmd
}

// View renders the input with its label.
func (p *Prompt) View() string {
	label := p.styles.UserTurn.Render("You: ")
	field := p.styles.InputField.Render(p.textinput.View())
	//nolint:misspell // lipgloss.Center is the correct constant from the library
	return lipgloss.JoinHorizontal(lipgloss.Center, label, field)
}

// Value returns the raw input text.
func (p *Prompt) Value() string {
	return p.textinput.Value()
}

// Question returns the trimmed input text.
func (p *Prompt) Question() string {
	return strings.TrimSpace(p.textinput.Value())
}

// SetValue sets the input text.
func (p *Prompt) SetValue(value string) {
	p.textinput.SetValue(value)
}

// Focus gives the input keyboard focus.
func (p *Prompt) Focus() tea.Cmd {
	return p.textinput.Focus()
}

// Blur removes keyboard focus.
func (p *Prompt) Blur() {
	p.textinput.Blur()
}

// Focused reports whether the input has focus.
func (p *Prompt) Focused() bool {
	return p.textinput.Focused()
}

// SetWidth sizes the input to the terminal width.
func (p *Prompt) SetWidth(width int) {
	p.width = width
	p.textinput.Width = max(width-12, 20)
}

// Width returns the current width.
func (p *Prompt) Width() int {
	return p.width
}

// Reset clears the input.
func (p *Prompt) Reset() {
	p.textinput.Reset()
}
