package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketmate/pkg/llm"
	"marketmate/pkg/tools"
)

// scriptedClient returns canned completions in order. An entry with a
// non-nil err fails that call instead.
type scriptedClient struct {
	script []scriptEntry
	calls  []llm.CompletionRequest
}

type scriptEntry struct {
	resp      *llm.Completion
	err       error
	transient bool
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	c.calls = append(c.calls, req)
	if len(c.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	entry := c.script[0]
	c.script = c.script[1:]
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.resp, nil
}

func (c *scriptedClient) IsTransientError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "transient")
}

func (c *scriptedClient) Provider() string { return "scripted" }
func (c *scriptedClient) Model() string    { return "scripted-1" }

func stopCompletion(content string) *llm.Completion {
	return &llm.Completion{Content: content, FinishReason: llm.FinishStop}
}

func toolCompletion(calls ...llm.ToolCall) *llm.Completion {
	return &llm.Completion{ToolCalls: calls, FinishReason: llm.FinishToolCalls}
}

func newTestEngine(client llm.Client, cfg Config) *Engine {
	registry := tools.NewRegistry()
	tools.RegisterFinanceTools(registry)
	if cfg.MaxIterations == 0 {
		cfg = DefaultConfig()
	}
	cfg.RetryDelay = time.Millisecond
	return NewEngine(client, registry, nil, cfg)
}

func runTurn(t *testing.T, client llm.Client, query string, history []llm.Message) *ChatState {
	t.Helper()
	e := newTestEngine(client, Config{})
	s := NewChatState("sess-1", "user123", "free-tier", query, history)
	require.NoError(t, e.Run(context.Background(), s))
	return s
}

func TestDirectAnswerTurn(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("The P/E ratio compares price to earnings.")},
	}}
	s := runTurn(t, client, "What is a P/E ratio?", nil)

	assert.Equal(t, "The P/E ratio compares price to earnings.", s.Response)
	require.NotNil(t, s.IsFinancial)
	assert.True(t, *s.IsFinancial)
	assert.Equal(t, 0, s.Iteration)

	// system, user, assistant
	require.Len(t, s.Messages, 3)
	assert.Equal(t, llm.RoleSystem, s.Messages[0].Role)
	assert.Equal(t, llm.RoleUser, s.Messages[1].Role)
	assert.Equal(t, llm.RoleAssistant, s.Messages[2].Role)
}

func TestInvalidQueryTurn(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: toolCompletion(llm.ToolCall{ID: "c1", Name: tools.ToolInvalid, Arguments: "{}"})},
	}}
	s := runTurn(t, client, "What's the weather like?", nil)

	assert.Equal(t, tools.InvalidQueryMessage, s.Response)
	require.NotNil(t, s.IsFinancial)
	assert.False(t, *s.IsFinancial)

	// The rejection short-circuits: no second model call.
	assert.Len(t, client.calls, 1)
}

func TestQuarterlyResultsTurn(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: toolCompletion(llm.ToolCall{
			ID:        "c1",
			Name:      tools.ToolQuarterlyResults,
			Arguments: `{"company_name":"Acme Corp","quarter":"2024-Q4"}`,
		})},
		{resp: stopCompletion("Acme Corp reported sales of 90M in 2024-Q4.")},
	}}
	s := runTurn(t, client, "How did Acme Corp do in Q4 2024?", nil)

	assert.Equal(t, "Acme Corp reported sales of 90M in 2024-Q4.", s.Response)
	require.NotNil(t, s.IsFinancial)
	assert.True(t, *s.IsFinancial)

	// Transcript: system, user, assistant(tool_calls), tool, assistant.
	require.Len(t, s.Messages, 5)
	assert.Equal(t, llm.RoleTool, s.Messages[3].Role)
	assert.Equal(t, "c1", s.Messages[3].ToolCallID)
	assert.Contains(t, s.Messages[3].Content, "pe_ratio")

	// Second model call sees the tool observation.
	require.Len(t, client.calls, 2)
	lastMsg := client.calls[1].Messages[len(client.calls[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, lastMsg.Role)
}

func TestConcurrentBatchKeepsCallOrder(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: toolCompletion(
			llm.ToolCall{ID: "c1", Name: tools.ToolFinancialNews, Arguments: `{"company_name":"Acme Corp"}`},
			llm.ToolCall{ID: "c2", Name: tools.ToolQuarterlyResults, Arguments: `{"company_name":"Acme Corp","quarter":"2024-Q4"}`},
		)},
		{resp: stopCompletion("Summary of news and results.")},
	}}
	s := runTurn(t, client, "News and Q4 numbers for Acme Corp?", nil)

	assert.Equal(t, "Summary of news and results.", s.Response)

	var toolMsgs []llm.Message
	for _, m := range s.Messages {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 2)
	assert.Equal(t, "c1", toolMsgs[0].ToolCallID)
	assert.Equal(t, "c2", toolMsgs[1].ToolCallID)
}

func TestUnknownToolYieldsErrorObservation(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: toolCompletion(
			llm.ToolCall{ID: "c1", Name: "get_stock_price", Arguments: `{"symbol":"ACME"}`},
			llm.ToolCall{ID: "c2", Name: tools.ToolFinancialNews, Arguments: `{"company_name":"Acme Corp"}`},
		)},
		{resp: stopCompletion("Here is what I found.")},
	}}
	s := runTurn(t, client, "Price and news for Acme Corp?", nil)

	assert.Equal(t, "Here is what I found.", s.Response)

	var toolMsgs []llm.Message
	for _, m := range s.Messages {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 2)
	assert.Contains(t, toolMsgs[0].Content, "error")
	assert.Contains(t, toolMsgs[0].Content, "get_stock_price")
	assert.Contains(t, toolMsgs[1].Content, "news")
}

func TestEmptyStopYieldsClarification(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("")},
	}}
	s := runTurn(t, client, "Acme", nil)

	assert.Equal(t, responseClarification, s.Response)
}

func TestIterationExhaustion(t *testing.T) {
	var script []scriptEntry
	for i := 0; i < 10; i++ {
		script = append(script, scriptEntry{resp: &llm.Completion{FinishReason: llm.FinishLength}})
	}
	client := &scriptedClient{script: script}
	s := runTurn(t, client, "Tell me everything about markets", nil)

	assert.Equal(t, responseExhaustedReasoning, s.Response)
	assert.Equal(t, 7, s.Iteration)
	// One call per non-exhausted pass; the final pass short-circuits.
	assert.Len(t, client.calls, 7)
}

func TestIterationExhaustionSkipsSummaryRefresh(t *testing.T) {
	var script []scriptEntry
	for i := 0; i < 10; i++ {
		script = append(script, scriptEntry{resp: &llm.Completion{FinishReason: llm.FinishLength}})
	}
	client := &scriptedClient{script: script}

	e := newTestEngine(client, Config{})
	s := NewChatState("sess-1", "user123", "free-tier", "Tell me everything about markets", nil)
	s.Summary = "Prior summary."
	s.UserMessageCount = 10 // cadence hit
	require.NoError(t, e.Run(context.Background(), s))

	assert.Equal(t, responseExhaustedReasoning, s.Response)
	// Even on the summary cadence, an exhausted turn makes no call
	// beyond its reasoning budget and keeps the prior summary.
	assert.Len(t, client.calls, 7)
	assert.Equal(t, "Prior summary.", s.Summary)
}

func TestTransientFailureRetriesWithoutDuplicates(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{err: errors.New("transient: connection reset")},
		{err: errors.New("transient: connection reset")},
		{resp: stopCompletion("Recovered answer.")},
	}}
	s := runTurn(t, client, "What is a P/E ratio?", nil)

	assert.Equal(t, "Recovered answer.", s.Response)
	assert.Len(t, client.calls, 3)

	// Retries must not duplicate the user message.
	userCount := 0
	for _, m := range s.Messages {
		if m.Role == llm.RoleUser {
			userCount++
		}
	}
	assert.Equal(t, 1, userCount)
}

func TestPersistentFailureDegradesGracefully(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{err: errors.New("transient: connection reset")},
		{err: errors.New("transient: connection reset")},
		{err: errors.New("transient: connection reset")},
	}}
	s := runTurn(t, client, "What is a P/E ratio?", nil)

	assert.Equal(t, responseTransportFailure, s.Response)
	require.NotNil(t, s.IsFinancial)
	assert.False(t, *s.IsFinancial)
	assert.Len(t, client.calls, 3)
}

func TestNonTransientFailureDoesNotRetry(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{err: errors.New("401 unauthorized")},
	}}
	s := runTurn(t, client, "What is a P/E ratio?", nil)

	assert.Equal(t, responseTransportFailure, s.Response)
	assert.Len(t, client.calls, 1)
}

func TestSummarySplicedAfterSystemPrompt(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("Answer with context.")},
	}}
	e := newTestEngine(client, Config{})
	s := NewChatState("sess-1", "user123", "free-tier", "And their Q3?", nil)
	s.Summary = "User has been asking about Acme Corp earnings."
	require.NoError(t, e.Run(context.Background(), s))

	req := client.calls[0]
	require.True(t, len(req.Messages) >= 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, llm.RoleSystem, req.Messages[1].Role)
	assert.Contains(t, req.Messages[1].Content, "Conversation summary: User has been asking about Acme Corp earnings.")
}

func TestSummaryRefreshOnCadence(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("Answer ten.")},
		{resp: stopCompletion("Fresh summary of the conversation.")},
	}}
	e := newTestEngine(client, Config{})
	s := NewChatState("sess-1", "user123", "free-tier", "Question ten", nil)
	s.UserMessageCount = 10
	require.NoError(t, e.Run(context.Background(), s))

	assert.Equal(t, "Fresh summary of the conversation.", s.Summary)
	require.Len(t, client.calls, 2)

	// The summary request leads with the instruction, not the persona.
	sumReq := client.calls[1]
	assert.Contains(t, sumReq.Messages[0].Content, "concise summary (50-100 words)")
	require.NotNil(t, sumReq.Temperature)
	assert.Equal(t, 0.5, *sumReq.Temperature)
}

func TestSummaryNotRefreshedOffCadence(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("Answer nine.")},
	}}
	e := newTestEngine(client, Config{})
	s := NewChatState("sess-1", "user123", "free-tier", "Question nine", nil)
	s.UserMessageCount = 9
	s.Summary = "prior summary"
	require.NoError(t, e.Run(context.Background(), s))

	assert.Equal(t, "prior summary", s.Summary)
	assert.Len(t, client.calls, 1)
}

func TestSummaryFailureKeepsPrior(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("Answer ten.")},
		{err: errors.New("503 service unavailable")},
	}}
	e := newTestEngine(client, Config{})
	s := NewChatState("sess-1", "user123", "free-tier", "Question ten", nil)
	s.UserMessageCount = 10
	s.Summary = "prior summary"
	require.NoError(t, e.Run(context.Background(), s))

	assert.Equal(t, "Answer ten.", s.Response)
	assert.Equal(t, "prior summary", s.Summary)
	// Summary refresh is single-attempt.
	assert.Len(t, client.calls, 2)
}

func TestHistoryIsCopiedIntoState(t *testing.T) {
	history := []llm.Message{
		llm.NewUserMessage("earlier question"),
		llm.NewAssistantMessage("earlier answer"),
	}
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("Follow-up answer.")},
	}}
	s := runTurn(t, client, "follow-up", history)

	// input step prepends the persona, reasoning appends the query.
	assert.Equal(t, llm.RoleSystem, s.Messages[0].Role)
	assert.Equal(t, "earlier question", s.Messages[1].Content)
	// caller slice untouched
	assert.Equal(t, "earlier question", history[0].Content)
	assert.Len(t, history, 2)
	assert.Equal(t, 2, s.UserMessageCount)
}

func TestCancelledContextStopsRun(t *testing.T) {
	client := &scriptedClient{script: []scriptEntry{
		{resp: stopCompletion("never used")},
	}}
	e := newTestEngine(client, Config{})
	s := NewChatState("sess-1", "user123", "free-tier", "query", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Run(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls)
}
