package domain

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	// RoleUser is a turn written by the person asking questions.
	RoleUser Role = "user"

	// RoleAssistant is a generated answer.
	RoleAssistant Role = "assistant"
)

// IsValid returns true if the role is a known value.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// ConversationTurn is one message in a session's history.
// Turns are append-only; a correction is a new turn.
type ConversationTurn struct {
	// SessionID is the external user or channel identifier.
	SessionID string

	// Role is who produced the turn.
	Role Role

	// Text is the message content.
	Text string

	// Timestamp is when the turn was appended.
	Timestamp time.Time

	// Ordinal is the position within the session, starting at 1.
	// Ordinals strictly increase; eviction leaves gaps but never reorders.
	Ordinal int64
}

// SessionStats summarises a session's activity.
type SessionStats struct {
	SessionID string

	// TotalTurns counts every turn ever appended, including evicted ones.
	TotalTurns int64

	// RetainedTurns counts turns still held in history.
	RetainedTurns int

	// RecentTurns counts retained turns within the recent window (24h by default).
	RecentTurns int

	// LastTurnAt is the timestamp of the newest turn, zero if the session is empty.
	LastTurnAt time.Time
}
