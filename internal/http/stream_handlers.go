package httpx

import (
	"net/http"
	"time"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/ws"
)

func (r *Router) handleStreamWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, apperr.KindInternal, "streaming is not configured")
		return
	}
	info := mustAuth(req)
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	channel := info.OrganizationID
	r.hub.Register(channel, client)
	r.trackStream(1)
	go func() {
		defer func() {
			r.hub.Unregister(channel, client)
			client.Close()
			r.trackStream(-1)
		}()
		if err := client.Serve(); err != nil {
			r.logger.Debug("websocket stream closed", "organization_id", channel, "error", err)
		}
	}()
}

func (r *Router) handleStreamSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, apperr.KindInternal, "streaming is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, apperr.KindInternal, "streaming unsupported")
		return
	}
	info := mustAuth(req)
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	channel := info.OrganizationID
	r.hub.Register(channel, client)
	r.trackStream(1)
	defer func() {
		r.hub.Unregister(channel, client)
		client.Close()
		r.trackStream(-1)
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
