package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewFromConfig parses the raw "llm" config section into provider
// groups, builds every atomic client through the registered factories
// and assembles the routing pool. The pool's default is a fallback
// chain over all clients in group order.
func NewFromConfig(raw jsoniter.RawMessage) (*Pool, error) {
	var groups []ProviderGroupConfig
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("parse llm config: %w", err)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("llm config has no provider groups")
	}

	var all []Client
	for _, g := range groups {
		factory, ok := GetProviderFactory(g.Type)
		if !ok {
			return nil, fmt.Errorf("unknown provider type %q", g.Type)
		}
		if len(g.APIKeys) == 0 {
			if key := os.Getenv(strings.ToUpper(g.Type) + "_API_KEY"); key != "" {
				g.APIKeys = []string{key}
			}
		}
		clients, err := factory.Create(g)
		if err != nil {
			return nil, fmt.Errorf("create %s clients: %w", g.Type, err)
		}
		for _, c := range clients {
			slog.Info("registered model", "provider", c.Provider(), "model", c.Model())
		}
		all = append(all, clients...)
	}

	def, err := NewFallback(all...)
	if err != nil {
		return nil, err
	}
	pool := NewPool(def)
	for _, c := range all {
		pool.Add(c)
	}
	return pool, nil
}
