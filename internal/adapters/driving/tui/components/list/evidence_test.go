package list

import (
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

func makeEvidence(n int) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, n)
	for i := range out {
		out[i] = domain.RetrievalResult{
			Chunk:    domain.Chunk{ID: fmt.Sprintf("c%d", i), Content: fmt.Sprintf("content %d", i)},
			Score:    1 - float64(i)/10,
			Filename: fmt.Sprintf("doc%d.pdf", i),
		}
	}
	return out
}

func TestNewEvidenceList(t *testing.T) {
	l := NewEvidenceList(nil)

	require.NotNil(t, l)
	assert.NotNil(t, l.styles)
	assert.Zero(t, l.Count())
	assert.Nil(t, l.SelectedItem())
	assert.Contains(t, l.View(), "No evidence")
}

func TestEvidenceList_Navigation(t *testing.T) {
	l := NewEvidenceList(nil)
	l.SetItems(makeEvidence(3))

	l.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, l.Selected())

	l.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	l.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	assert.Equal(t, 2, l.Selected(), "selection stops at the last item")

	l.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	assert.Equal(t, "doc1.pdf", l.SelectedItem().Filename)

	l.MoveUp()
	l.MoveUp()
	assert.Equal(t, 0, l.Selected())
}

func TestEvidenceList_SetItemsResetsSelection(t *testing.T) {
	l := NewEvidenceList(nil)
	l.SetItems(makeEvidence(3))
	l.MoveDown()

	l.SetItems(makeEvidence(2))

	assert.Equal(t, 0, l.Selected())
	assert.Len(t, l.Items(), 2)
}

func TestEvidenceList_View(t *testing.T) {
	l := NewEvidenceList(nil)
	items := makeEvidence(2)
	items[1].Chunk.Section = "Chapter 2"
	l.SetItems(items)
	l.SetDimensions(120, 20)

	view := l.View()

	assert.Contains(t, view, "Evidence (2)")
	assert.Contains(t, view, "[1] doc0.pdf")
	assert.Contains(t, view, "Chapter 2")
	assert.Contains(t, view, "content 1")
	assert.Contains(t, view, "1.000")
}

func TestEvidenceList_ViewScrollsToSelection(t *testing.T) {
	l := NewEvidenceList(nil)
	l.SetItems(makeEvidence(10))
	l.SetDimensions(120, 6)
	for range 9 {
		l.MoveDown()
	}

	view := l.View()

	assert.Contains(t, view, "doc9.pdf")
	assert.NotContains(t, view, "doc0.pdf")
}

func TestClip(t *testing.T) {
	tests := []struct {
		in       string
		n        int
		expected string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"ñandúñandú", 6, "ñan..."},
		{"abcdef", 2, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, clip(tt.in, tt.n))
		})
	}
}
