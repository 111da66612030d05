package llm

import "time"

//----------------------------------------------------------------
// Message - one role-tagged transcript entry
//----------------------------------------------------------------

// Message is a single entry of the model-visible transcript. Entries are
// append-only within a turn; insertion order is significant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls carries tool invocation requests emitted by the model
	// (role: assistant only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a tool result with the originating call
	// (role: tool only). Required for the model to match concurrent
	// tool calls in the next reasoning pass.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is the name of the tool that produced this result
	// (role: tool only).
	ToolName string `json:"name,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// ToolCall is a structured request emitted by the model, naming a tool
// and its JSON-encoded named arguments.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object string
}

// ToolDescriptor advertises one callable tool to the model. Descriptors
// are passed verbatim to the provider on every completion call.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema object
}

//----------------------------------------------------------------
// Helper constructors
//----------------------------------------------------------------

// NewMessage builds a plain text message with the given role.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage builds a system-role message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage builds a user-role message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage builds an assistant-role message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolMessage builds a tool-role result entry tagged with the
// originating call id and tool name.
func NewToolMessage(callID, toolName, content string) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: callID,
		ToolName:   toolName,
		Content:    content,
		Timestamp:  time.Now().Unix(),
	}
}
