package ws

import (
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type chanSubscriber struct {
	received chan []byte
	fail     bool
	closed   chan struct{}
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{received: make(chan []byte, 8), closed: make(chan struct{}, 1)}
}

func (c *chanSubscriber) Send(payload []byte) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.received <- payload
	return nil
}

func (c *chanSubscriber) Close() {
	select {
	case c.closed <- struct{}{}:
	default:
	}
}

func TestHubDeliversOnlyToChannelSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	orgA := newChanSubscriber()
	orgB := newChanSubscriber()
	hub.Register("org-a", orgA)
	hub.Register("org-b", orgB)

	if err := hub.Broadcast("org-a", []byte("hello")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	select {
	case got := <-orgA.received:
		if string(got) != "hello" {
			t.Fatalf("unexpected payload %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
	if hub.Subscribers("org-b") != 1 {
		t.Fatalf("expected org-b subscriber to remain registered")
	}
	select {
	case got := <-orgB.received:
		t.Fatalf("org-b must not receive org-a payloads, got %q", got)
	default:
	}
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	broken := newChanSubscriber()
	broken.fail = true
	hub.Register("org-a", broken)
	if err := hub.Broadcast("org-a", []byte("x")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	select {
	case <-broken.closed:
	case <-time.After(time.Second):
		t.Fatalf("expected failing subscriber to be closed")
	}
	if n := hub.Subscribers("org-a"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestHubBroadcastAfterStop(t *testing.T) {
	hub := NewHub()
	hub.Stop()
	if err := hub.Broadcast("org-a", []byte("x")); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
}

func TestSSEClientWritesNamedEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	client := NewSSEClient(rec, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := client.Send([]byte(`{"event":"incident-created","channel":"org-a"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: incident-created\ndata: ") {
		t.Fatalf("unexpected frame %q", body)
	}
	client.Close()
	select {
	case <-client.Done():
	default:
		t.Fatalf("expected done channel closed")
	}
	if err := client.Send([]byte("{}")); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}
