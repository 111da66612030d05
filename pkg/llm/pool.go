package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Fallback is a composite client that tries each member once, in order,
// until one succeeds. It never retries a member; bounded retry is the
// caller's policy.
type Fallback struct {
	clients []Client
}

// NewFallback builds a fallback chain. At least one client is required.
func NewFallback(clients ...Client) (*Fallback, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("fallback chain needs at least one client")
	}
	return &Fallback{clients: clients}, nil
}

func (f *Fallback) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var lastErr error
	for _, c := range f.clients {
		resp, err := c.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		slog.Warn("provider failed, trying next in chain",
			"provider", c.Provider(), "model", c.Model(), "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func (f *Fallback) IsTransientError(err error) bool {
	for _, c := range f.clients {
		if c.IsTransientError(err) {
			return true
		}
	}
	return false
}

func (f *Fallback) Provider() string { return "fallback" }

func (f *Fallback) Model() string {
	if len(f.clients) > 0 {
		return f.clients[0].Model()
	}
	return ""
}

// Pool routes each request to the client serving the model named in the
// request ("provider/model" form). Requests with no model, or naming an
// unknown model, go to the default chain.
type Pool struct {
	byModel map[string]Client
	def     Client
}

func NewPool(def Client) *Pool {
	return &Pool{byModel: make(map[string]Client), def: def}
}

// Add registers an atomic client under its "provider/model" key.
func (p *Pool) Add(c Client) {
	p.byModel[c.Provider()+"/"+c.Model()] = c
}

// Select resolves a model id to its client, or the default chain.
func (p *Pool) Select(model string) Client {
	if c, ok := p.byModel[model]; ok {
		return c
	}
	return p.def
}

// Models lists the routable "provider/model" ids.
func (p *Pool) Models() []string {
	out := make([]string, 0, len(p.byModel))
	for k := range p.byModel {
		out = append(out, k)
	}
	return out
}

func (p *Pool) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	return p.Select(req.Model).Complete(ctx, req)
}

func (p *Pool) IsTransientError(err error) bool {
	if p.def.IsTransientError(err) {
		return true
	}
	for _, c := range p.byModel {
		if c.IsTransientError(err) {
			return true
		}
	}
	return false
}

func (p *Pool) Provider() string { return "pool" }
func (p *Pool) Model() string    { return p.def.Model() }
