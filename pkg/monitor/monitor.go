package monitor

import "time"

// MonitorMessage is one message observed flowing through a channel.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // "USER" or "ASSISTANT"
	ChannelID   string
	Username    string
	Content     string
}

// Monitor observes the conversation traffic of every channel.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
