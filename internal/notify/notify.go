// Package notify fans domain events out to live subscribers and external transports.
package notify

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the wire form of every published event.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Publisher delivers envelopes over one transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, env Envelope) error
}

// Emitter is what mutating services depend on. Emit never fails the caller.
type Emitter interface {
	Emit(ctx context.Context, channel, event string, payload any)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, channel, event string, payload any)

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, channel, event string, payload any) {
	f(ctx, channel, event, payload)
}

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(context.Context, string, string, any) {})
