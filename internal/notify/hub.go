package notify

import (
	"context"
	"encoding/json"

	"github.com/splax/statuspage/internal/ws"
)

// HubPublisher broadcasts envelopes to in-process websocket and SSE subscribers.
type HubPublisher struct {
	hub *ws.Hub
}

// NewHubPublisher wraps hub.
func NewHubPublisher(hub *ws.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Name implements Publisher.
func (p *HubPublisher) Name() string { return "hub" }

// Publish implements Publisher.
func (p *HubPublisher) Publish(_ context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.hub.Broadcast(env.Channel, data)
}
