package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketmate/pkg/llm"
	"marketmate/pkg/tools"
)

func TestRouteAfterReasoningPrefersToolCalls(t *testing.T) {
	s := &ChatState{MaxIterations: 7, FinishReason: llm.FinishStop}
	msg := llm.NewAssistantMessage("")
	msg.ToolCalls = []llm.ToolCall{{ID: "1", Name: tools.ToolFinancialNews}}
	s.Messages = append(s.Messages, msg)

	assert.Equal(t, StepToolExecution, RouteAfterReasoning(s))
}

func TestRouteAfterReasoningStopGoesToSummarization(t *testing.T) {
	s := &ChatState{MaxIterations: 7, FinishReason: llm.FinishStop}
	s.Messages = append(s.Messages, llm.NewAssistantMessage("done"))

	assert.Equal(t, StepSummarization, RouteAfterReasoning(s))
}

func TestRouteAfterReasoningResponseGoesToSummarization(t *testing.T) {
	s := &ChatState{MaxIterations: 7, Response: "answer", FinishReason: llm.FinishLength}
	s.Messages = append(s.Messages, llm.NewAssistantMessage("answer"))

	assert.Equal(t, StepSummarization, RouteAfterReasoning(s))
}

func TestRouteAfterReasoningLoopsWithBudget(t *testing.T) {
	s := &ChatState{MaxIterations: 7, Iteration: 3, FinishReason: llm.FinishLength}
	s.Messages = append(s.Messages, llm.NewAssistantMessage(""))

	assert.Equal(t, StepReasoning, RouteAfterReasoning(s))
}

func TestRouteAfterReasoningExhaustedLoopsToEntryGuard(t *testing.T) {
	// The exhausted budget goes back through reasoning so the entry
	// guard can set the fixed unable-to-process response; a direct exit
	// here would leave the turn without one.
	s := &ChatState{MaxIterations: 7, Iteration: 7, FinishReason: llm.FinishLength}
	s.Messages = append(s.Messages, llm.NewAssistantMessage(""))

	assert.Equal(t, StepReasoning, RouteAfterReasoning(s))
}

func TestRouteAfterToolExecutionResponseShortCircuits(t *testing.T) {
	s := &ChatState{MaxIterations: 7, Response: "rejected"}
	assert.Equal(t, StepOutput, RouteAfterToolExecution(s))
}

func TestRouteAfterToolExecutionInvalidResultShortCircuits(t *testing.T) {
	s := &ChatState{MaxIterations: 7}
	s.Messages = append(s.Messages, llm.NewToolMessage("1", tools.ToolInvalid, `{"error":"nope"}`))
	assert.Equal(t, StepOutput, RouteAfterToolExecution(s))
}

func TestRouteAfterToolExecutionObservationsLoopBack(t *testing.T) {
	s := &ChatState{MaxIterations: 7}
	s.Messages = append(s.Messages, llm.NewToolMessage("1", tools.ToolFinancialNews, `{"news":[]}`))
	assert.Equal(t, StepReasoning, RouteAfterToolExecution(s))
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "input", StepInput.String())
	assert.Equal(t, "reasoning", StepReasoning.String())
	assert.Equal(t, "tool_execution", StepToolExecution.String())
	assert.Equal(t, "summarization", StepSummarization.String())
	assert.Equal(t, "output", StepOutput.String())
}
