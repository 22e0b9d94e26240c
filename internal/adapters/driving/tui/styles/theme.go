// Package styles provides colour themes and styling for the TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// Theme is the colour palette of the TUI.
type Theme struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Foreground lipgloss.Color
	Muted      lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Border     lipgloss.Color
	Bar        lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#2E86AB"), // Blue
		Secondary:  lipgloss.Color("#F18F01"), // Amber
		Foreground: lipgloss.Color("#E0E0E0"),
		Muted:      lipgloss.Color("#7A7A7A"),
		Success:    lipgloss.Color("#6CBF84"),
		Warning:    lipgloss.Color("#E9C46A"),
		Error:      lipgloss.Color("#E63946"),
		Border:     lipgloss.Color("#4A4A4A"),
		Bar:        lipgloss.Color("#1B1B1B"),
	}
}

// Styles contains pre-configured lipgloss styles.
type Styles struct {
	theme *Theme

	Title      lipgloss.Style
	Subtitle   lipgloss.Style
	Normal     lipgloss.Style
	Muted      lipgloss.Style
	Selected   lipgloss.Style
	Error      lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	InputField lipgloss.Style
	StatusBar  lipgloss.Style
	Help       lipgloss.Style
	Border     lipgloss.Style

	// UserTurn labels questions in the transcript.
	UserTurn lipgloss.Style

	// AssistantTurn labels answers in the transcript.
	AssistantTurn lipgloss.Style

	// Citation renders the source list under an answer.
	Citation lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	text := lipgloss.NewStyle().Foreground(theme.Foreground)
	rounded := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border)

	return &Styles{
		theme:    theme,
		Title:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Subtitle: lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		Normal:   text,
		Muted:    lipgloss.NewStyle().Foreground(theme.Muted),
		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Foreground).
			Background(theme.Primary),
		Error:      lipgloss.NewStyle().Foreground(theme.Error),
		Success:    lipgloss.NewStyle().Foreground(theme.Success),
		Warning:    lipgloss.NewStyle().Foreground(theme.Warning),
		InputField: rounded.Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Background(theme.Bar).
			Padding(0, 1),
		Help:          lipgloss.NewStyle().Foreground(theme.Muted),
		Border:        rounded,
		UserTurn:      lipgloss.NewStyle().Bold(true).Foreground(theme.Secondary),
		AssistantTurn: lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		Citation:      lipgloss.NewStyle().Italic(true).Foreground(theme.Muted),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Theme returns the theme used by these styles.
func (s *Styles) Theme() *Theme {
	return s.theme
}

// Status returns the style for a document status.
func (s *Styles) Status(status domain.DocumentStatus) lipgloss.Style {
	switch status {
	case domain.StatusEmbedded:
		return s.Success
	case domain.StatusFailed:
		return s.Error
	case domain.StatusPending, domain.StatusChunked:
		return s.Warning
	default:
		return s.Muted
	}
}
