package ws

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func serveClient(t *testing.T, wait time.Duration) (*httptest.Server, <-chan error) {
	t.Helper()
	errs := make(chan error, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
		client.pongWait = wait
		errs <- client.Serve()
		client.Close()
	}))
	t.Cleanup(srv.Close)
	return srv, errs
}

func dialClient(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestServeKeepsResponsivePeerAlive(t *testing.T) {
	wait := 100 * time.Millisecond
	srv, errs := serveClient(t, wait)
	conn := dialClient(t, srv)

	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case err := <-errs:
		t.Fatalf("expected connection to stay open, got %v", err)
	case <-time.After(5 * wait):
	}
	if pings.Load() < 2 {
		t.Fatalf("expected periodic pings, got %d", pings.Load())
	}
}

func TestServeDropsSilentPeer(t *testing.T) {
	wait := 100 * time.Millisecond
	srv, errs := serveClient(t, wait)
	_ = dialClient(t, srv)

	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected read deadline error")
		}
	case <-time.After(10 * wait):
		t.Fatalf("expected silent peer to be dropped")
	}
}
