// Package docdetails shows the stored metadata of one document.
package docdetails

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragbot/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// View is the document details view.
type View struct {
	styles *styles.Styles

	doc          *domain.Document
	scrollOffset int
	width        int
	height       int
}

// NewView creates a new document details view.
func NewView(s *styles.Styles) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{styles: s, width: 80, height: 24}
}

// SetDocument sets the document to display.
func (v *View) SetDocument(doc domain.Document) {
	v.doc = &doc
	v.scrollOffset = 0
}

// Update handles messages for the details view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if v.scrollOffset > 0 {
				v.scrollOffset--
			}
		case "down", "j":
			if v.scrollOffset < v.maxScrollOffset() {
				v.scrollOffset++
			}
		case "esc":
			return v, func() tea.Msg {
				return messages.ViewChanged{View: messages.ViewDocuments}
			}
		}
	}
	return v, nil
}

func (v *View) visibleLines() int {
	return max(v.height-6, 1)
}

func (v *View) maxScrollOffset() int {
	return max(len(v.lines())-v.visibleLines(), 0)
}

// lines builds the label/value rows for the document.
func (v *View) lines() []string {
	if v.doc == nil {
		return nil
	}
	d := v.doc
	lines := []string{
		field("ID", d.ID),
		field("Filename", d.Filename),
		field("Status", string(d.Status)),
		field("Pages", fmt.Sprintf("%d", d.PageCount)),
		field("Characters", fmt.Sprintf("%d", d.TextLength)),
		field("Chunks", fmt.Sprintf("%d", d.ChunkCount)),
		field("Uploaded", formatTime(d.UploadedAt)),
		field("Updated", formatTime(d.UpdatedAt)),
	}
	if d.Error != "" {
		lines = append(lines, "", "Error:")
		wrapped := strings.Split(wrap(d.Error, max(v.width-6, 20)), "\n")
		for _, l := range wrapped {
			lines = append(lines, "  "+l)
		}
	}
	return lines
}

func field(label, value string) string {
	return fmt.Sprintf("%-12s %s", label+":", value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// wrap breaks text on spaces so no line exceeds width runes when possible.
func wrap(text string, width int) string {
	var b strings.Builder
	n := 0
	for i, w := range strings.Fields(text) {
		l := len([]rune(w))
		if i > 0 {
			if n+1+l > width {
				b.WriteString("\n")
				n = 0
			} else {
				b.WriteString(" ")
				n++
			}
		}
		b.WriteString(w)
		n += l
	}
	return b.String()
}

// View renders the document details view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Document Details"))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", max(min(v.width-4, 60), 1)))
	b.WriteString("\n\n")

	if v.doc == nil {
		b.WriteString(v.styles.Muted.Render("No document selected"))
	} else {
		lines := v.lines()
		end := min(v.scrollOffset+v.visibleLines(), len(lines))
		for _, line := range lines[v.scrollOffset:end] {
			b.WriteString(v.renderLine(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("[↑/↓] scroll  [esc] back"))
	return b.String()
}

func (v *View) renderLine(line string) string {
	switch {
	case line == "Error:":
		return v.styles.Error.Render(line)
	case strings.HasPrefix(line, "  "):
		return v.styles.Muted.Render(line)
	case strings.HasPrefix(line, "Status:"):
		label, value, _ := strings.Cut(line, ":")
		return v.styles.Subtitle.Render(label+":") + v.styles.Status(v.doc.Status).Render(value)
	}
	if label, value, ok := strings.Cut(line, ":"); ok {
		return v.styles.Subtitle.Render(label+":") + v.styles.Normal.Render(value)
	}
	return v.styles.Normal.Render(line)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
}

// Document returns the displayed document.
func (v *View) Document() *domain.Document {
	return v.doc
}
