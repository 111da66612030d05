package llm

// Role constants tag transcript entries. Providers map these onto their
// native wire roles (Gemini folds tool results into the user role, etc.).
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// FinishReason constants define normalized reasons for generation
// termination. All providers must normalize their native stop reasons
// to these values; unrecognized reasons pass through verbatim.
const (
	FinishStop      = "stop"       // Natural completion
	FinishToolCalls = "tool_calls" // Model requested one or more tool invocations
	FinishLength    = "length"     // Output truncated due to token limit
)
