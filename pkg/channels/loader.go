package channels

import (
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

// LoadFromConfig iterates the channel configuration map, resolves
// factories and registers the resulting channels with the gateway.
// Unknown channel types and failed creations are skipped with a log so
// one misconfigured channel never blocks the rest.
func LoadFromConfig(configs map[string]jsoniter.RawMessage, deps Deps) {
	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, deps)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}
		if channel == nil {
			continue
		}

		deps.Gateway.Register(channel)
		slog.Info("Channel registered", "name", name)
	}
}
