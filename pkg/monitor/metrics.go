package monitor

import "sync/atomic"

// Metrics counts workflow activity. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ReasoningIteration()
	ToolCall(name string)
	StepError(step string)
	Turn()
}

// Counters is the in-process Metrics implementation backing the
// /api/metrics endpoint.
type Counters struct {
	iterations atomic.Int64
	toolCalls  atomic.Int64
	stepErrors atomic.Int64
	turns      atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) ReasoningIteration() { c.iterations.Add(1) }
func (c *Counters) ToolCall(name string) {
	c.toolCalls.Add(1)
}
func (c *Counters) StepError(step string) {
	c.stepErrors.Add(1)
}
func (c *Counters) Turn() { c.turns.Add(1) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"reasoning_iterations": c.iterations.Load(),
		"tool_calls":           c.toolCalls.Load(),
		"step_errors":          c.stepErrors.Load(),
		"turns":                c.turns.Load(),
	}
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ReasoningIteration() {}
func (NopMetrics) ToolCall(string)     {}
func (NopMetrics) StepError(string)    {}
func (NopMetrics) Turn()               {}
