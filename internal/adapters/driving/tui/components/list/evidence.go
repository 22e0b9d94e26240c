// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// EvidenceList shows the chunks that backed the last answer.
type EvidenceList struct {
	items    []domain.RetrievalResult
	selected int
	styles   *styles.Styles
	width    int
	height   int
}

// NewEvidenceList creates an empty evidence list.
func NewEvidenceList(s *styles.Styles) *EvidenceList {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &EvidenceList{styles: s, width: 80, height: 10}
}

// Update handles list navigation keys.
func (l *EvidenceList) Update(msg tea.Msg) (*EvidenceList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			l.MoveUp()
		case "down", "j":
			l.MoveDown()
		}
	}
	return l, nil
}

// View renders the visible window of evidence.
func (l *EvidenceList) View() string {
	if len(l.items) == 0 {
		return l.styles.Muted.Render("No evidence")
	}

	lines := make([]string, 0, len(l.items)*2+2)
	lines = append(lines, l.styles.Subtitle.Render(fmt.Sprintf("Evidence (%d)", len(l.items))), "")

	// Two lines per item.
	visible := max((l.height-2)/2, 1)
	start := 0
	if l.selected >= visible {
		start = l.selected - visible + 1
	}
	end := min(start+visible, len(l.items))

	for i := start; i < end; i++ {
		lines = append(lines, l.render(i, &l.items[i]))
	}
	return strings.Join(lines, "\n")
}

func (l *EvidenceList) render(index int, r *domain.RetrievalResult) string {
	label := fmt.Sprintf("[%d] %s", index+1, r.Filename)
	if r.Chunk.Section != "" {
		label += " · " + r.Chunk.Section
	}
	label = clip(label, max(l.width-12, 10))
	score := fmt.Sprintf("%.3f", r.Score)

	var head string
	if index == l.selected {
		head = l.styles.Selected.Render("> " + label + "  " + score)
	} else {
		head = l.styles.Normal.Render("  "+label+"  ") + l.styles.Muted.Render(score)
	}

	preview := strings.Join(strings.Fields(r.Chunk.Content), " ")
	preview = clip(preview, max(l.width-6, 20))
	return head + "\n" + l.styles.Muted.Render("    "+preview)
}

// clip shortens s to n runes with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// SetItems replaces the list and resets the selection.
func (l *EvidenceList) SetItems(items []domain.RetrievalResult) {
	l.items = items
	l.selected = 0
}

// Items returns the current evidence.
func (l *EvidenceList) Items() []domain.RetrievalResult {
	return l.items
}

// Selected returns the selected index.
func (l *EvidenceList) Selected() int {
	return l.selected
}

// SelectedItem returns the selected evidence, or nil if the list is empty.
func (l *EvidenceList) SelectedItem() *domain.RetrievalResult {
	if l.selected < 0 || l.selected >= len(l.items) {
		return nil
	}
	return &l.items[l.selected]
}

// MoveUp moves the selection up.
func (l *EvidenceList) MoveUp() {
	if l.selected > 0 {
		l.selected--
	}
}

// MoveDown moves the selection down.
func (l *EvidenceList) MoveDown() {
	if l.selected < len(l.items)-1 {
		l.selected++
	}
}

// SetDimensions sets the component size.
func (l *EvidenceList) SetDimensions(width, height int) {
	l.width = width
	l.height = height
}

// Count returns the number of items.
func (l *EvidenceList) Count() int {
	return len(l.items)
}
