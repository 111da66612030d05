package web

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"marketmate/pkg/api"
	"marketmate/pkg/channels"
)

// WebFactory builds the HTTP API channel.
type WebFactory struct{}

// Create implements ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	var cfg WebConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse web config: %w", err)
	}
	return NewWebChannel(cfg, deps.Turns, deps.Store, deps.Metrics, deps.Gateway), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
