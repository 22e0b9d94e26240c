package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentStatus_IsValid(t *testing.T) {
	for _, s := range AllDocumentStatuses() {
		assert.True(t, s.IsValid(), s.String())
	}
	assert.False(t, DocumentStatus("").IsValid())
	assert.False(t, DocumentStatus("indexed").IsValid())
}

func TestDocumentStatus_Predicates(t *testing.T) {
	tests := []struct {
		status    DocumentStatus
		queryable bool
		terminal  bool
	}{
		{StatusPending, false, false},
		{StatusChunked, false, false},
		{StatusEmbedded, true, true},
		{StatusFailed, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.queryable, tt.status.IsQueryable())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

// TestAllDocumentStatuses tests lifecycle ordering
func TestAllDocumentStatuses(t *testing.T) {
	assert.Equal(t,
		[]DocumentStatus{StatusPending, StatusChunked, StatusEmbedded, StatusFailed},
		AllDocumentStatuses())
}

func TestRole_IsValid(t *testing.T) {
	assert.True(t, RoleUser.IsValid())
	assert.True(t, RoleAssistant.IsValid())
	assert.False(t, Role("system").IsValid())
	assert.Equal(t, "assistant", RoleAssistant.String())
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text     string
		expected int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"capítulo", 2},
		{"ñññññññññ", 3},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.expected, EstimateTokens(tt.text))
		})
	}
}
