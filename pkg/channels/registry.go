// Package channels wires platform-specific channel implementations to
// the gateway through a factory registry.
package channels

import (
	jsoniter "github.com/json-iterator/go"

	"marketmate/pkg/api"
	"marketmate/pkg/gateway"
	"marketmate/pkg/monitor"
	"marketmate/pkg/store"
)

// Deps bundles the shared system resources a channel may need.
type Deps struct {
	Turns   api.TurnService
	Store   *store.Store
	Metrics *monitor.Counters
	Gateway *gateway.Manager
}

// ChannelFactory defines the abstract interface for platform-specific
// channel creators. New platforms register here without touching the
// gateway core.
type ChannelFactory interface {
	Create(rawConfig jsoniter.RawMessage, deps Deps) (api.Channel, error)
}

var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a new ChannelFactory to the global registry.
// Called from the channel packages' init().
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory retrieves a registered ChannelFactory by platform name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
