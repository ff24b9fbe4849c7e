package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("session not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry in a conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	TriageTag string    `json:"triage_tag,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTurn builds a user turn stamped with the current time.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// AssistantTurn builds an assistant turn. The triage tag may be empty.
func AssistantTurn(content, triageTag string) Turn {
	return Turn{Role: RoleAssistant, Content: content, TriageTag: triageTag, Timestamp: time.Now().UTC()}
}

// ToolTurn builds a tool-result turn.
func ToolTurn(toolName, content string) Turn {
	return Turn{Role: RoleTool, ToolName: toolName, Content: content, Timestamp: time.Now().UTC()}
}
