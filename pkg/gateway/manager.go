// Package gateway manages the lifecycle of communication channels and
// fans conversation traffic out to the monitor.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketmate/pkg/api"
	"marketmate/pkg/monitor"
)

// Manager owns every registered channel and starts/stops them as a
// unit.
type Manager struct {
	channels map[string]api.Channel
	monitor  monitor.Monitor
	mu       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]api.Channel),
	}
}

// SetMonitor attaches a traffic monitor. Optional.
func (g *Manager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a channel. Later registrations with the same ID win.
func (g *Manager) Register(c api.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// Get returns a registered channel by ID.
func (g *Manager) Get(id string) (api.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll starts every registered channel. The first failure aborts
// the startup.
func (g *Manager) StartAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll stops every channel, logging rather than propagating errors
// so one bad channel cannot block shutdown.
func (g *Manager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
}

// ObserveUser forwards an inbound user message to the monitor.
func (g *Manager) ObserveUser(channelID, username, content string) {
	g.observe("USER", channelID, username, content)
}

// ObserveAssistant forwards an outbound assistant reply to the monitor.
func (g *Manager) ObserveAssistant(channelID, username, content string) {
	g.observe("ASSISTANT", channelID, username, content)
}

func (g *Manager) observe(kind, channelID, username, content string) {
	if g.monitor == nil {
		return
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: kind,
		ChannelID:   channelID,
		Username:    username,
		Content:     content,
	})
}
