// Package messages defines Bubbletea message types for the TUI.
// Messages represent events and commands that flow through the Elm architecture.
package messages

import (
	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewMenu is the main navigation menu.
	ViewMenu ViewType = iota
	// ViewChat is the question and answer view.
	ViewChat
	// ViewDocuments lists the ingested documents.
	ViewDocuments
	// ViewDocDetails shows a single document.
	ViewDocDetails
	// ViewHelp is the help/keybindings view.
	ViewHelp
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewMenu:
		return "menu"
	case ViewChat:
		return "chat"
	case ViewDocuments:
		return "documents"
	case ViewDocDetails:
		return "doc_details"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// QuestionSubmitted is sent when the user sends a question from the chat input.
type QuestionSubmitted struct {
	Question string
}

// AnswerReceived carries the answer to a question back to the model.
type AnswerReceived struct {
	Question string
	Answer   *domain.Answer
	Err      error
}

// HistoryLoaded carries the restored turns of the TUI session.
type HistoryLoaded struct {
	Turns []domain.ConversationTurn
	Err   error
}

// DocumentsLoaded carries the document list.
type DocumentsLoaded struct {
	Documents []domain.Document
	Err       error
}

// DocumentSelected is sent when a document is opened from the list.
type DocumentSelected struct {
	Document domain.Document
}

// DocumentDeleted reports the outcome of a delete.
type DocumentDeleted struct {
	DocumentID string
	Err        error
}

// ErrorOccurred is sent when an operation fails outside a result message.
type ErrorOccurred struct {
	Err error
}

// Quit requests application shutdown.
type Quit struct{}
