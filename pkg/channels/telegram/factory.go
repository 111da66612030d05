package telegram

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"marketmate/pkg/api"
	"marketmate/pkg/channels"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory builds Telegram channels.
type TelegramFactory struct{}

// Create implements ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	var tgCfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}

	if tgCfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}

	return NewTelegramChannel(tgCfg, deps.Turns, deps.Gateway)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
