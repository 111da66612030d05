package workflow

import (
	"context"
	"fmt"

	"marketmate/pkg/llm"
	"marketmate/pkg/tools"
)

// stepFunc mutates the state for one node of the machine. Step
// functions never decide routing; that belongs to the route functions.
type stepFunc func(ctx context.Context, s *ChatState) error

// routeFunc picks the next step from the state alone.
type routeFunc func(s *ChatState) Step

// Graph is the compiled turn state machine: a step table plus a
// routing table, driven from StepInput until StepOutput.
type Graph struct {
	steps  map[Step]stepFunc
	routes map[Step]routeFunc
}

// Run drives the machine to completion. Cancellation is honored at
// every step boundary so a timed-out turn stops between steps rather
// than mid-flight.
func (g *Graph) Run(ctx context.Context, s *ChatState) error {
	step := StepInput
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn, ok := g.steps[step]
		if !ok {
			return fmt.Errorf("no step function for %s", step)
		}
		if err := fn(ctx, s); err != nil {
			return fmt.Errorf("step %s: %w", step, err)
		}
		if step == StepOutput {
			return nil
		}
		route, ok := g.routes[step]
		if !ok {
			return fmt.Errorf("no route out of %s", step)
		}
		step = route(s)
	}
}

// RouteAfterReasoning decides where a completed reasoning pass goes:
// tool calls on the latest assistant message win, then a finished or
// answered turn heads to summarization, and otherwise the pass loops
// back to reasoning. An exhausted budget loops back too: the entry
// guard there sets the fixed unable-to-process response, so the turn
// always terminates with a user-visible string.
func RouteAfterReasoning(s *ChatState) Step {
	if last := s.lastMessage(); last != nil && last.Role == llm.RoleAssistant && len(last.ToolCalls) > 0 {
		return StepToolExecution
	}
	if s.FinishReason == llm.FinishStop || s.Response != "" {
		return StepSummarization
	}
	return StepReasoning
}

// RouteAfterToolExecution short-circuits to output when the turn
// already has a response or the rejection tool fired; otherwise the
// observations go back through reasoning.
func RouteAfterToolExecution(s *ChatState) Step {
	if s.Response != "" || s.hasInvalidToolResult(tools.ToolInvalid) {
		return StepOutput
	}
	return StepReasoning
}
