package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/statuspage/internal/ws"
)

type recordingPublisher struct {
	name     string
	err      error
	panics   bool
	received []Envelope
	ctxErrs  []error
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(ctx context.Context, env Envelope) error {
	if p.panics {
		panic("transport exploded")
	}
	p.received = append(p.received, env)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanoutContinuesPastFailingPublishers(t *testing.T) {
	failing := &recordingPublisher{name: "failing", err: errors.New("broker down")}
	panicking := &recordingPublisher{name: "panicking", panics: true}
	healthy := &recordingPublisher{name: "healthy"}
	fanout := NewFanout(discardLogger(), time.Second, failing, panicking, nil, healthy)

	fanout.Emit(context.Background(), "org-1", "service-updated", map[string]string{"id": "svc-1"})

	if len(failing.received) != 1 || len(healthy.received) != 1 {
		t.Fatalf("expected every publisher to be attempted, got failing=%d healthy=%d", len(failing.received), len(healthy.received))
	}
	env := healthy.received[0]
	if env.Channel != "org-1" || env.Event != "service-updated" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	var payload map[string]string
	if err := json.Unmarshal(env.Payload, &payload); err != nil || payload["id"] != "svc-1" {
		t.Fatalf("unexpected payload %s (%v)", env.Payload, err)
	}
	if got := fanout.Publishers(); len(got) != 3 {
		t.Fatalf("expected nil publisher to be skipped, got %v", got)
	}
}

func TestFanoutDetachesFromCancelledRequest(t *testing.T) {
	pub := &recordingPublisher{name: "rec"}
	fanout := NewFanout(discardLogger(), time.Second, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fanout.Emit(ctx, "org-1", "incident-created", struct{}{})

	if len(pub.ctxErrs) != 1 || pub.ctxErrs[0] != nil {
		t.Fatalf("expected publish context to survive caller cancellation, got %v", pub.ctxErrs)
	}
}

func TestFanoutDropsUnencodablePayload(t *testing.T) {
	pub := &recordingPublisher{name: "rec"}
	fanout := NewFanout(discardLogger(), time.Second, pub)
	fanout.Emit(context.Background(), "org-1", "service-created", make(chan int))
	if len(pub.received) != 0 {
		t.Fatalf("expected no publish for unencodable payload")
	}
}

type chanSubscriber struct {
	received chan []byte
}

func (c *chanSubscriber) Send(payload []byte) error {
	c.received <- payload
	return nil
}

func (c *chanSubscriber) Close() {}

func TestHubPublisherBroadcastsEnvelopeToChannel(t *testing.T) {
	hub := ws.NewHub()
	defer hub.Stop()
	sub := &chanSubscriber{received: make(chan []byte, 1)}
	hub.Register("org-1", sub)

	fanout := NewFanout(discardLogger(), time.Second, NewHubPublisher(hub))
	fanout.Emit(context.Background(), "org-1", "incident-updated", map[string]string{"status": "RESOLVED"})

	select {
	case raw := <-sub.received:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Event != "incident-updated" || env.Channel != "org-1" {
			t.Fatalf("unexpected envelope %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for hub delivery")
	}
}

type hungPublisher struct {
	name string
}

func (p hungPublisher) Name() string { return p.name }

func (p hungPublisher) Publish(ctx context.Context, _ Envelope) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestFanoutWaitsForOneTimeoutNotTheSum(t *testing.T) {
	timeout := 150 * time.Millisecond
	healthy := &recordingPublisher{name: "healthy"}
	fanout := NewFanout(discardLogger(), timeout, hungPublisher{"redis"}, hungPublisher{"mqtt"}, hungPublisher{"mail"}, healthy)

	start := time.Now()
	fanout.Emit(context.Background(), "org-1", "incident-updated", struct{}{})
	elapsed := time.Since(start)

	if elapsed >= 2*timeout {
		t.Fatalf("expected publishers to run concurrently, Emit blocked for %s", elapsed)
	}
	if len(healthy.received) != 1 {
		t.Fatalf("expected healthy publisher to receive the event")
	}
}
