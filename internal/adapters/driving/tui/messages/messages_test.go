package messages

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestViewType_String(t *testing.T) {
	tests := []struct {
		view     ViewType
		expected string
	}{
		{ViewMenu, "menu"},
		{ViewChat, "chat"},
		{ViewDocuments, "documents"},
		{ViewDocDetails, "doc_details"},
		{ViewHelp, "help"},
		{ViewType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.view.String())
		})
	}
}

func TestMessages_AreTeaMessages(t *testing.T) {
	msgs := []tea.Msg{
		ViewChanged{View: ViewChat},
		QuestionSubmitted{Question: "q"},
		AnswerReceived{Question: "q", Err: errors.New("x")},
		HistoryLoaded{},
		DocumentsLoaded{},
		DocumentSelected{},
		DocumentDeleted{DocumentID: "d"},
		ErrorOccurred{Err: errors.New("x")},
		Quit{},
	}

	for _, m := range msgs {
		assert.NotNil(t, m)
	}
}
