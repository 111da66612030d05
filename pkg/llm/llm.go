package llm

import (
	"context"
	"errors"
	"log/slog"
)

// ErrMalformed marks a completion the provider returned but which could
// not be normalized (no choices, undecodable payload). Callers treat it
// as a non-transient failure of the current attempt.
var ErrMalformed = errors.New("malformed model output")

// Usage carries provider token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a structured, provider-neutral completion request:
// the full transcript plus the advertised tools and sampling parameters.
type CompletionRequest struct {
	// Model optionally routes the request to a specific configured model
	// ("provider/model" form). Atomic clients ignore it; the Pool uses it.
	Model string

	Messages   []Message
	Tools      []ToolDescriptor
	ToolChoice string // "auto" when tools are offered, empty otherwise

	// Temperature is optional; nil leaves the provider default in place.
	Temperature *float64
	Metadata    map[string]any
}

// Completion is the normalized result of one model call.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Client is the provider-neutral LLM client consumed by the workflow
// engine. Implementations own transient-vs-fatal error classification;
// callers never parse error strings.
type Client interface {
	// Complete sends the transcript and returns a normalized completion.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// IsTransientError reports whether err is worth retrying
	// (503, rate limited upstream, connection reset, ...).
	IsTransientError(err error) bool

	// Provider returns the provider name ("openai", "ollama", "gemini").
	Provider() string

	// Model returns the configured model identifier.
	Model() string
}

// LogUsage emits one debug line of token accounting for a completed call.
func LogUsage(model string, usage *Usage) {
	if usage == nil {
		return
	}
	slog.Debug("completion usage",
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
	)
}
