// Package tools implements the closed set of finance tools the agent
// can call, plus the registry that dispatches calls to them.
package tools

import (
	"context"
	"fmt"
	"sync"

	"marketmate/pkg/api"
	"marketmate/pkg/llm"
)

// ErrToolNotFound reports a call to a tool name that is not registered.
var ErrToolNotFound = fmt.Errorf("tool not found")

// Registry is a thread-safe implementation of api.ToolRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]api.Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]api.Tool)}
}

func (r *Registry) Register(tool api.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

func (r *Registry) Get(name string) (api.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Describe lists tool schemas in registration order, keeping the
// prompt-facing tool list stable across runs.
func (r *Registry) Describe() []llm.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Describe())
	}
	return out
}

func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.Execute(ctx, args)
}
