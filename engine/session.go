package engine

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// turnEnd is the ChatML turn terminator; it doubles as the stop sequence
// for every generation pass.
const turnEnd = "<|im_end|>"

// Turn is one message in a conversation session.
type Turn struct {
	Role    Role
	Content string
}

// Session is an ordered sequence of turns scoped to one CLI invocation.
// Nothing is persisted across invocations.
type Session struct {
	ID    string
	turns []Turn
}

// NewSession creates an empty session with a fresh identifier.
func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// Append adds a turn to the session.
func (s *Session) Append(role Role, content string) {
	s.turns = append(s.turns, Turn{Role: role, Content: content})
}

// Turns returns the session's turns in order.
func (s *Session) Turns() []Turn {
	return s.turns
}

// Prompt renders the session as a ChatML prompt ending with an open
// assistant turn for the model to complete.
func (s *Session) Prompt() string {
	var sb strings.Builder
	for _, t := range s.turns {
		sb.WriteString("<|im_start|>")
		sb.WriteString(string(t.Role))
		sb.WriteString("\n")
		sb.WriteString(t.Content)
		sb.WriteString(turnEnd)
		sb.WriteString("\n")
	}
	sb.WriteString("<|im_start|>assistant\n")
	return sb.String()
}
