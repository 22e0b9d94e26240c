// Package documents provides the documents list view component for the TUI.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

// ErrNoDocumentService is returned when the view has no document service.
var ErrNoDocumentService = errors.New("document service not available")

// View lists ingested documents and lets the user delete them.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	documents driving.DocumentService
	ctx       context.Context

	items        []domain.Document
	selected     int
	scrollOffset int
	confirming   bool
	loading      bool
	notice       string
	err          error
	width        int
	height       int
}

// NewView creates a new documents view.
func NewView(s *styles.Styles, km *keymap.KeyMap, documents driving.DocumentService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	return &View{
		styles:    s,
		keymap:    km,
		documents: documents,
		ctx:       context.Background(),
		width:     80,
		height:    24,
	}
}

// WithContext sets the context used for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init loads the document list.
func (v *View) Init() tea.Cmd {
	v.loading = true
	v.confirming = false
	return v.load()
}

func (v *View) load() tea.Cmd {
	svc, ctx := v.documents, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentsLoaded{Err: ErrNoDocumentService}
		}
		docs, err := svc.List(ctx)
		return messages.DocumentsLoaded{Documents: docs, Err: err}
	}
}

func (v *View) remove(id string) tea.Cmd {
	svc, ctx := v.documents, v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentDeleted{DocumentID: id, Err: ErrNoDocumentService}
		}
		_, err := svc.Delete(ctx, id)
		return messages.DocumentDeleted{DocumentID: id, Err: err}
	}
}

// Update handles messages for the documents view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		if v.confirming {
			return v.handleConfirmKey(msg)
		}
		return v.handleKey(msg)

	case messages.DocumentsLoaded:
		v.loading = false
		v.err = msg.Err
		if msg.Err == nil {
			v.items = msg.Documents
			v.selected = min(v.selected, max(len(v.items)-1, 0))
			v.adjustScroll()
		}
		return v, nil

	case messages.DocumentDeleted:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = "Deleted " + msg.DocumentID
		v.loading = true
		return v, v.load()

	case messages.ErrorOccurred:
		v.err = msg.Err
		return v, nil
	}

	return v, nil
}

func (v *View) handleKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	key := msg.String()
	switch {
	case keymap.Matches(key, v.keymap.Up):
		if v.selected > 0 {
			v.selected--
			v.adjustScroll()
		}
	case keymap.Matches(key, v.keymap.Down):
		if v.selected < len(v.items)-1 {
			v.selected++
			v.adjustScroll()
		}
	case keymap.Matches(key, v.keymap.Select):
		if doc := v.SelectedDocument(); doc != nil {
			selected := *doc
			return v, func() tea.Msg {
				return messages.DocumentSelected{Document: selected}
			}
		}
	case keymap.Matches(key, v.keymap.Delete):
		if v.SelectedDocument() != nil {
			v.confirming = true
			v.notice = ""
		}
	case keymap.Matches(key, v.keymap.Reload):
		v.loading = true
		v.notice = ""
		return v, v.load()
	case keymap.Matches(key, v.keymap.Back):
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}
	return v, nil
}

func (v *View) handleConfirmKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	v.confirming = false
	if msg.String() != "y" {
		return v, nil
	}
	doc := v.SelectedDocument()
	if doc == nil {
		return v, nil
	}
	return v, v.remove(doc.ID)
}

func (v *View) adjustScroll() {
	visible := v.visibleItemCount()
	if v.selected < v.scrollOffset {
		v.scrollOffset = v.selected
	} else if v.selected >= v.scrollOffset+visible {
		v.scrollOffset = v.selected - visible + 1
	}
}

func (v *View) visibleItemCount() int {
	return max(v.height-8, 1)
}

// View renders the documents view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render(fmt.Sprintf("Documents (%d)", len(v.items))))
	b.WriteString("\n\n")

	switch {
	case v.loading:
		b.WriteString(v.styles.Muted.Render("Loading documents..."))
	case v.err != nil:
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
	case len(v.items) == 0:
		b.WriteString(v.styles.Muted.Render("No documents ingested yet. Use `ragbot ingest <file.pdf>`."))
	default:
		visible := v.visibleItemCount()
		end := min(v.scrollOffset+visible, len(v.items))
		for i := v.scrollOffset; i < end; i++ {
			b.WriteString(v.renderDocument(i, &v.items[i]))
			b.WriteString("\n")
		}
		if len(v.items) > visible {
			b.WriteString(v.styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", v.scrollOffset+1, end, len(v.items))))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case v.confirming:
		if doc := v.SelectedDocument(); doc != nil {
			b.WriteString(v.styles.Warning.Render(fmt.Sprintf("Delete %s and its chunks? [y/N]", doc.Filename)))
		}
	case v.notice != "":
		b.WriteString(v.styles.Success.Render(v.notice))
	}
	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render(status.Hints(v.keymap.DocumentsHelp())))

	return b.String()
}

func (v *View) renderDocument(index int, doc *domain.Document) string {
	nameWidth := max(v.width-30, 10)
	name := doc.Filename
	if r := []rune(name); len(r) > nameWidth {
		name = string(r[:nameWidth-3]) + "..."
	}
	chunks := fmt.Sprintf("%4d chunks", doc.ChunkCount)

	if index == v.selected {
		return v.styles.Selected.Render(fmt.Sprintf("> %-*s  %-8s %s", nameWidth, name, doc.Status, chunks))
	}
	return "  " + v.styles.Normal.Render(fmt.Sprintf("%-*s  ", nameWidth, name)) +
		v.styles.Status(doc.Status).Render(fmt.Sprintf("%-8s", doc.Status)) + " " +
		v.styles.Muted.Render(chunks)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
}

// Documents returns the listed documents.
func (v *View) Documents() []domain.Document {
	return v.items
}

// SelectedIndex returns the selected index.
func (v *View) SelectedIndex() int {
	return v.selected
}

// SelectedDocument returns the selected document, or nil if the list is empty.
func (v *View) SelectedDocument() *domain.Document {
	if v.selected < 0 || v.selected >= len(v.items) {
		return nil
	}
	return &v.items[v.selected]
}

// Confirming reports whether a delete confirmation is pending.
func (v *View) Confirming() bool {
	return v.confirming
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}
