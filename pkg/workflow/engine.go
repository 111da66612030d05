package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"marketmate/pkg/api"
	"marketmate/pkg/llm"
	"marketmate/pkg/monitor"
	"marketmate/pkg/tools"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config carries the engine's tuning knobs.
type Config struct {
	MaxIterations        int
	MaxRetries           int
	RetryDelay           time.Duration
	SummaryEvery         int
	ReasoningTemperature float64
	SummaryTemperature   float64
	SystemPrompt         string
	EnableTools          bool
}

// DefaultConfig matches the production tuning.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        7,
		MaxRetries:           3,
		RetryDelay:           time.Second,
		SummaryEvery:         10,
		ReasoningTemperature: 0.7,
		SummaryTemperature:   0.5,
		SystemPrompt:         DefaultSystemPrompt,
		EnableTools:          true,
	}
}

// Engine executes the Reason-Act-Observe loop for one turn at a time.
// It is stateless between turns; everything mutable lives in ChatState.
type Engine struct {
	client   llm.Client
	registry api.ToolRegistry
	metrics  monitor.Metrics
	cfg      Config
	graph    *Graph
}

func NewEngine(client llm.Client, registry api.ToolRegistry, metrics monitor.Metrics, cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 7
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if metrics == nil {
		metrics = monitor.NopMetrics{}
	}
	e := &Engine{
		client:   client,
		registry: registry,
		metrics:  metrics,
		cfg:      cfg,
	}
	e.graph = &Graph{
		steps: map[Step]stepFunc{
			StepInput:         e.inputStep,
			StepReasoning:     e.reasoningStep,
			StepToolExecution: e.toolExecutionStep,
			StepSummarization: e.summarizationStep,
			StepOutput:        e.outputStep,
		},
		routes: map[Step]routeFunc{
			StepInput:         func(*ChatState) Step { return StepReasoning },
			StepReasoning:     RouteAfterReasoning,
			StepToolExecution: RouteAfterToolExecution,
			StepSummarization: func(*ChatState) Step { return StepOutput },
		},
	}
	return e
}

// Run drives one turn from input to output.
func (e *Engine) Run(ctx context.Context, s *ChatState) error {
	if s.MaxIterations <= 0 {
		s.MaxIterations = e.cfg.MaxIterations
	}
	return e.graph.Run(ctx, s)
}

// inputStep normalizes the loaded history: the system persona leads
// the message list and the user message count is derived when the
// caller did not supply one.
func (e *Engine) inputStep(ctx context.Context, s *ChatState) error {
	slog.Info("Entering input step", "session_id", s.SessionID, "user_query", s.UserQuery)

	if len(s.Messages) == 0 || s.Messages[0].Role != llm.RoleSystem {
		s.Messages = append([]llm.Message{llm.NewSystemMessage(e.cfg.SystemPrompt)}, s.Messages...)
	}

	if s.UserMessageCount == 0 {
		count := 0
		for _, m := range s.Messages {
			if m.Role == llm.RoleUser {
				count++
			}
		}
		s.UserMessageCount = count + 1 // current query included
	}
	return nil
}

// reasoningStep runs one model pass. All state mutations happen before
// the model call so a retried call never duplicates appended messages.
func (e *Engine) reasoningStep(ctx context.Context, s *ChatState) error {
	slog.Info("Entering reasoning step", "session_id", s.SessionID, "iteration", s.Iteration)
	e.metrics.ReasoningIteration()

	if s.Iteration >= s.MaxIterations {
		s.Response = responseExhaustedReasoning
		slog.Warn("Max iterations reached", "session_id", s.SessionID)
		return nil
	}

	if s.Iteration == 0 {
		s.Messages = append(s.Messages, llm.NewUserMessage(s.UserQuery))
		if s.Summary != "" {
			summaryMsg := llm.NewSystemMessage("Conversation summary: " + s.Summary)
			s.Messages = append(s.Messages[:1], append([]llm.Message{summaryMsg}, s.Messages[1:]...)...)
		}
	}

	req := llm.CompletionRequest{
		Model:       s.Model,
		Messages:    s.Messages,
		Temperature: &e.cfg.ReasoningTemperature,
		Metadata:    s.Metadata,
	}
	if e.cfg.EnableTools && e.registry != nil {
		req.Tools = e.registry.Describe()
		req.ToolChoice = "auto"
	}

	resp, err := e.complete(ctx, req, true)
	if err != nil {
		slog.Error("Error in reasoning step", "session_id", s.SessionID, "error", err)
		e.metrics.StepError(StepReasoning.String())
		s.Response = responseTransportFailure
		isFinancial := false
		s.IsFinancial = &isFinancial
		return nil
	}

	s.FinishReason = resp.FinishReason
	content := resp.Content

	if len(resp.ToolCalls) > 0 {
		msg := llm.NewAssistantMessage(content)
		msg.ToolCalls = resp.ToolCalls
		s.Messages = append(s.Messages, msg)

		if s.Iteration == 0 {
			isFinancial := true
			for _, tc := range resp.ToolCalls {
				if tc.Name == tools.ToolInvalid {
					isFinancial = false
				}
			}
			s.IsFinancial = &isFinancial
			slog.Info("Financial status determined", "session_id", s.SessionID, "is_financial", isFinancial)
		}
		names := make([]string, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			names = append(names, tc.Name)
		}
		slog.Info("Tool call detected", "session_id", s.SessionID, "tool_calls", names)
		return nil
	}

	s.Messages = append(s.Messages, llm.NewAssistantMessage(content))

	// Plain answers are assumed financial; the prompt shifts off-topic
	// queries to the rejection tool instead.
	if s.Iteration == 0 {
		isFinancial := true
		s.IsFinancial = &isFinancial
	}

	if s.FinishReason == llm.FinishStop {
		if content == "" {
			content = responseClarification
			slog.Info("Clarification request detected", "session_id", s.SessionID)
		}
		s.Response = content
		return nil
	}

	if content != "" {
		s.Response = content
		slog.Info("Final response generated", "session_id", s.SessionID)
		return nil
	}

	s.Iteration++
	slog.Info("Incomplete response, looping back", "session_id", s.SessionID, "iteration", s.Iteration)
	return nil
}

type toolOutcome struct {
	payload map[string]any
	err     error
}

// toolExecutionStep dispatches the batch of tool calls from the latest
// assistant message. Calls run concurrently; observations are appended
// in call order so the transcript stays deterministic.
func (e *Engine) toolExecutionStep(ctx context.Context, s *ChatState) error {
	slog.Info("Entering tool execution step", "session_id", s.SessionID, "iteration", s.Iteration)

	if s.Iteration >= s.MaxIterations {
		s.Response = responseExhaustedTools
		slog.Warn("Max iterations reached in tool execution", "session_id", s.SessionID)
		return nil
	}

	last := s.lastMessage()
	if last == nil || len(last.ToolCalls) == 0 {
		s.Response = responseMissingToolCall
		slog.Error("No tool call in last message", "session_id", s.SessionID)
		e.metrics.StepError(StepToolExecution.String())
		return nil
	}

	calls := last.ToolCalls
	outcomes := make([]toolOutcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(slot int, call llm.ToolCall) {
			defer wg.Done()
			args := map[string]any{}
			if call.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					outcomes[slot] = toolOutcome{err: fmt.Errorf("invalid arguments for %s: %w", call.Name, err)}
					return
				}
			}
			payload, err := e.registry.Invoke(ctx, call.Name, args)
			outcomes[slot] = toolOutcome{payload: payload, err: err}
		}(i, call)
	}
	wg.Wait()

	for i, call := range calls {
		outcome := outcomes[i]
		if outcome.err != nil {
			slog.Error("Tool call failed", "session_id", s.SessionID, "tool", call.Name, "error", outcome.err)
			e.metrics.StepError(StepToolExecution.String())
			payload, _ := json.Marshal(map[string]any{
				"error": fmt.Sprintf("Error executing %s: %v", call.Name, outcome.err),
			})
			s.Messages = append(s.Messages, llm.NewToolMessage(call.ID, call.Name, string(payload)))
			continue
		}

		e.metrics.ToolCall(call.Name)
		payload, err := json.Marshal(outcome.payload)
		if err != nil {
			payload = []byte("{}")
		}
		s.Messages = append(s.Messages, llm.NewToolMessage(call.ID, call.Name, string(payload)))
		slog.Info("Tool call executed", "session_id", s.SessionID, "tool", call.Name)

		if call.Name == tools.ToolInvalid {
			if msg, ok := outcome.payload["error"].(string); ok && msg != "" {
				s.Response = msg
			}
			slog.Info("Invalid query detected", "session_id", s.SessionID)
		}
	}

	if s.Response == "" {
		s.Iteration++
	}
	return nil
}

// summarizationStep refreshes the rolling summary on its cadence. The
// refresh call is a single attempt; a failure keeps the prior summary
// and never degrades the turn.
func (e *Engine) summarizationStep(ctx context.Context, s *ChatState) error {
	slog.Info("Entering summarization step", "session_id", s.SessionID, "user_message_count", s.UserMessageCount)

	if len(s.Messages) == 0 {
		return nil
	}
	// An exhausted turn already spent its call budget; no further model
	// calls are made on its way out.
	if s.Response == responseExhaustedReasoning || s.Response == responseExhaustedTools {
		return nil
	}
	if e.cfg.SummaryEvery > 0 && s.UserMessageCount%e.cfg.SummaryEvery != 0 {
		slog.Debug("Skipping summary refresh", "session_id", s.SessionID)
		return nil
	}

	msgs := append([]llm.Message{llm.NewSystemMessage(summaryInstruction(s.Summary))}, s.Messages[1:]...)
	req := llm.CompletionRequest{
		Model:       s.Model,
		Messages:    msgs,
		Temperature: &e.cfg.SummaryTemperature,
		Metadata:    s.Metadata,
	}

	resp, err := e.complete(ctx, req, false)
	if err != nil {
		slog.Error("Error in summarization step", "session_id", s.SessionID, "error", err)
		e.metrics.StepError(StepSummarization.String())
		return nil
	}
	s.Summary = resp.Content
	slog.Info("Summary updated", "session_id", s.SessionID, "summary_length", len(s.Summary))
	return nil
}

func (e *Engine) outputStep(ctx context.Context, s *ChatState) error {
	slog.Info("Entering output step", "session_id", s.SessionID)
	return nil
}

// complete calls the model, retrying transient failures with a fixed
// delay when withRetry is set. Attempts are bounded by MaxRetries.
func (e *Engine) complete(ctx context.Context, req llm.CompletionRequest, withRetry bool) (*llm.Completion, error) {
	attempts := 1
	if withRetry {
		attempts = e.cfg.MaxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.cfg.RetryDelay):
			}
		}
		resp, err := e.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		// Malformed completions are retried like transport blips; the
		// next attempt usually parses.
		if !e.client.IsTransientError(err) && !errors.Is(err, llm.ErrMalformed) {
			break
		}
		slog.Warn("Retryable model failure", "attempt", i+1, "error", err)
	}
	return nil, lastErr
}
