package input

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrompt(t *testing.T) {
	p := NewPrompt(nil)

	require.NotNil(t, p)
	assert.NotNil(t, p.styles)
	assert.Empty(t, p.Value())
	assert.True(t, p.Focused())
	assert.NotNil(t, p.Init())
}

func TestPrompt_Typing(t *testing.T) {
	p := NewPrompt(nil)

	for _, r := range "hi" {
		p.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	assert.Equal(t, "hi", p.Value())
}

func TestPrompt_Question_Trims(t *testing.T) {
	p := NewPrompt(nil)
	p.SetValue("  what is a tensor?  ")

	assert.Equal(t, "what is a tensor?", p.Question())
}

func TestPrompt_CharLimit(t *testing.T) {
	p := NewPrompt(nil)
	p.SetValue(strings.Repeat("a", MaxQuestionLength+50))

	assert.Len(t, p.Value(), MaxQuestionLength)
}

func TestPrompt_FocusBlur(t *testing.T) {
	p := NewPrompt(nil)

	p.Blur()
	assert.False(t, p.Focused())

	p.Focus()
	assert.True(t, p.Focused())
}

func TestPrompt_SetWidth(t *testing.T) {
	p := NewPrompt(nil)

	p.SetWidth(100)
	assert.Equal(t, 100, p.Width())
	assert.Equal(t, 88, p.textinput.Width)

	p.SetWidth(10)
	assert.Equal(t, 20, p.textinput.Width)
}

func TestPrompt_ViewAndReset(t *testing.T) {
	p := NewPrompt(nil)
	p.SetValue("abc")

	assert.Contains(t, p.View(), "You:")

	p.Reset()
	assert.Empty(t, p.Value())
}
