// Package session provides SQLite-backed persistence for conversation
// sessions and their transcripts.
package session

import "time"

// Kind classifies a message for rendering. It carries no behavior.
type Kind string

const (
	KindUserInput       Kind = "user_input"
	KindAssistantOutput Kind = "assistant_output"
	KindSystem          Kind = "system"
	KindToolUse         Kind = "tool_use"
	KindBuildLog        Kind = "build_log"
)

// Session identifies one logical conversation. The ID is assigned by the
// store and immutable; UpdatedAt is bumped on every message append and on
// explicit touch, and never moves backwards.
type Session struct {
	ID          int64
	Title       string
	Endpoint    string // HTTP(S) base this session last talked to
	ResumeToken string // assistant runtime resume token; empty until issued
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is one entry in a session's transcript. Content is append-only
// while a stream is open, then frozen. Messages are ordered by Timestamp.
type Message struct {
	ID        int64
	SessionID int64
	Kind      Kind
	Content   string
	Timestamp time.Time
}

// titleLimit is the rune count a derived session title is truncated to.
const titleLimit = 20

// DeriveTitle builds a session title from the first user message: the first
// titleLimit runes plus an ellipsis marker when the message is longer.
func DeriveTitle(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) <= titleLimit {
		return firstMessage
	}
	return string(runes[:titleLimit]) + "..."
}
