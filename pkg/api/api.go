// Package api holds the shared contracts between the workflow engine,
// the tool layer, the chat service and the channels. Keeping them here
// avoids import cycles between those packages.
package api

import (
	"context"

	"marketmate/pkg/llm"
)

// Tool defines the structural interface for any capability the agent
// can execute. It includes metadata for prompt injection (JSON Schema)
// and the execution logic itself.
type Tool interface {
	Name() string
	// Describe returns the schema advertised to the model.
	Describe() llm.ToolDescriptor
	// Execute performs the actual tool logic using the provided argument map.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool)
	Get(name string) (Tool, bool)
	// Describe lists the schemas of every registered tool.
	Describe() []llm.ToolDescriptor
	// Invoke resolves a tool by name and executes it.
	Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Channel defines the standardized lifecycle interface for
// communication platforms (Telegram, web API).
type Channel interface {
	ID() string
	Start(ctx context.Context) error
	Stop() error
}

// TurnRequest is one inbound user message, normalized across channels.
type TurnRequest struct {
	UserID         string // Platform-specific unique identifier for the user
	Username       string // Display name as provided by the platform
	ConversationID string // Existing conversation to continue; empty starts a new one
	SessionKey     string // Channel-scoped session key (e.g. "telegram:12345")
	Content        string // Text of the user message
	Channel        string // Identifier of the originating channel
	Model          string // Optional "provider/model" routing hint
}

// TurnResult is the outcome of one fully processed turn.
type TurnResult struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	IsFinancial    *bool  `json:"is_financial,omitempty"`
	Iterations     int    `json:"iterations"`
}

// TurnService processes one conversational turn end to end: rate
// limiting, history loading, the reasoning workflow and persistence.
type TurnService interface {
	HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error)
}
