// Package llm abstracts the conversational model behind a Collaborator
// interface so orchestration logic can be tested without a live endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrCollaboratorUnavailable wraps transport and API failures from the
// model endpoint. The orchestrator surfaces it without touching session
// state.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// Kind discriminates the two shapes a completion can take.
type Kind int

const (
	// KindFinalAnswer carries assistant text ready for the user.
	KindFinalAnswer Kind = iota
	// KindToolRequest carries one or more tool invocations to execute
	// before asking the model again.
	KindToolRequest
)

// ToolCall is one requested tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Result is the tagged outcome of a completion: exactly one of Text or
// ToolCalls is meaningful, selected by Kind.
type Result struct {
	Kind      Kind
	Text      string
	ToolCalls []ToolCall
}

// Role identifies a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolResponse carries a tool result back to the model, linked to the
// call that produced it.
type ToolResponse struct {
	CallID  string
	Name    string
	Content string
}

// Message is one entry of the model conversation.
type Message struct {
	Role Role
	Text string
	// ToolCalls echoes a prior tool request on an assistant message.
	ToolCalls []ToolCall
	// ToolResponse is set on tool-role messages.
	ToolResponse *ToolResponse
}

// ToolDef describes a callable tool. Parameters is a JSON Schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Collaborator produces the next step of a conversation.
type Collaborator interface {
	Complete(ctx context.Context, conversation []Message, tools []ToolDef) (Result, error)
}

// SystemMessage builds a system-role message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

// UserMessage builds a user-role message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// AssistantToolCalls builds the assistant message that requested tools.
func AssistantToolCalls(calls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// ToolResultMessage builds the tool-role message answering a call.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolResponse: &ToolResponse{CallID: callID, Name: name, Content: content}}
}
