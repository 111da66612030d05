// Package workflow implements the Reason-Act-Observe loop that powers
// every conversational turn: an explicit state machine whose steps
// mutate a per-turn ChatState and whose routing is decided by pure
// functions over that state.
package workflow

import (
	"marketmate/pkg/llm"
)

// Step identifies one node of the turn state machine.
type Step int

const (
	StepInput Step = iota
	StepReasoning
	StepToolExecution
	StepSummarization
	StepOutput
)

func (s Step) String() string {
	switch s {
	case StepInput:
		return "input"
	case StepReasoning:
		return "reasoning"
	case StepToolExecution:
		return "tool_execution"
	case StepSummarization:
		return "summarization"
	case StepOutput:
		return "output"
	default:
		return "unknown"
	}
}

// ChatState is the working record for one turn. It is created fresh
// per turn, mutated in place by the steps, and discarded after the
// result is persisted. Messages is append-only apart from the two
// system entries the input and reasoning steps splice in front.
type ChatState struct {
	SessionID string
	UserID    string
	Tier      string
	UserQuery string

	Messages []llm.Message
	Summary  string
	Response string

	// IsFinancial is nil until the first reasoning pass classifies
	// the query.
	IsFinancial *bool

	Iteration        int
	MaxIterations    int
	UserMessageCount int
	FinishReason     string

	// Model is the "provider/model" routing hint for this conversation.
	Model string

	Metadata map[string]any
}

// NewChatState builds the turn state over a copy of the loaded history
// so step mutations never alias the caller's slice.
func NewChatState(sessionID, userID, tier, userQuery string, history []llm.Message) *ChatState {
	msgs := make([]llm.Message, len(history))
	copy(msgs, history)
	return &ChatState{
		SessionID:     sessionID,
		UserID:        userID,
		Tier:          tier,
		UserQuery:     userQuery,
		Messages:      msgs,
		MaxIterations: 7,
	}
}

func (s *ChatState) lastMessage() *llm.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// hasInvalidToolResult reports whether any tool result in the state
// came from the rejection tool.
func (s *ChatState) hasInvalidToolResult(invalidName string) bool {
	for _, m := range s.Messages {
		if m.Role == llm.RoleTool && m.ToolName == invalidName {
			return true
		}
	}
	return false
}
