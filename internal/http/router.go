package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/service/auth"
	"github.com/splax/statuspage/internal/service/healthcheck"
	"github.com/splax/statuspage/internal/service/incident"
	"github.com/splax/statuspage/internal/service/organization"
	"github.com/splax/statuspage/internal/service/registry"
	"github.com/splax/statuspage/internal/service/status"
	"github.com/splax/statuspage/internal/ws"
)

// Sweeper runs one health-check pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (healthcheck.Report, error)
}

// Dependencies bundles everything the router serves.
type Dependencies struct {
	Logger        *slog.Logger
	Auth          auth.Service
	Organizations organization.Service
	Registry      registry.Service
	Incidents     incident.Service
	Status        status.Service
	Sweeper       Sweeper
	Hub           *ws.Hub
	Limiter       RateLimiter
	StatusAPIKey  string
	CronToken     string
	DBHealth      func(context.Context) error
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	auth          auth.Service
	organizations organization.Service
	registry      registry.Service
	incidents     incident.Service
	status        status.Service
	sweeper       Sweeper
	hub           *ws.Hub
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	statusAPIKey  string
	cronToken     string
	dbHealth      func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	streamClients      prometheus.Gauge
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitPublic    = 240
	rateLimitWebsocket = 30
	rateLimitCron      = 12
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:           http.NewServeMux(),
		logger:        logger,
		auth:          deps.Auth,
		organizations: deps.Organizations,
		registry:      deps.Registry,
		incidents:     deps.Incidents,
		status:        deps.Status,
		sweeper:       deps.Sweeper,
		hub:           deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      deps.Limiter,
		statusAPIKey: strings.TrimSpace(deps.StatusAPIKey),
		cronToken:    strings.TrimSpace(deps.CronToken),
		dbHealth:     deps.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) handle(pattern, route string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, r.instrument(route, r.audit(h)))
}

func (r *Router) register() {
	r.mux.Handle("/metrics", promhttp.Handler())
	r.handle("/healthz", "/healthz", r.handleHealthz)

	r.handle("/auth/signup", "/auth/signup", r.withRateLimit("signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup))
	r.handle("/auth/login", "/auth/login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin))
	r.handle("/auth/refresh", "/auth/refresh", r.withRateLimit("refresh", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleRefresh))

	r.handle("/organizations", "/organizations", r.handlerAuthRate("organizations", rateLimitUserWrite, rateWindowDefault, r.handleOrganizations))
	r.handle("/organization", "/organization", r.handlerOrgRate("organization", rateLimitUserWrite, rateWindowDefault, r.handleOrganization))
	r.handle("/organization/members", "/organization/members", r.handlerOrgRate("organization", rateLimitUserWrite, rateWindowDefault, r.handleOrganizationMembers))

	r.handle("/services", "/services", r.handlerOrgRate("services", rateLimitUserRead, rateWindowDefault, r.handleServices))
	r.handle("/services/", "/services/:id", r.handlerOrgRate("services", rateLimitUserRead, rateWindowDefault, r.handleServiceSubroutes))
	r.handle("/incidents", "/incidents", r.handlerOrgRate("incidents", rateLimitUserRead, rateWindowDefault, r.handleIncidents))
	r.handle("/incidents/", "/incidents/:id", r.handlerOrgRate("incidents", rateLimitUserRead, rateWindowDefault, r.handleIncidentSubroutes))

	r.handle("/public/status/", "/public/status/:slug", r.withRateLimit("public", rateLimitPublic, rateWindowDefault, rateLimitKeyIP, r.handlePublicStatus))
	r.handle("/api/v1/status", "/api/v1/status", r.withRateLimit("v1", rateLimitPublic, rateWindowDefault, rateLimitKeyIP, r.handleStatusSummary))
	r.handle("/cron/collect-metrics", "/cron/collect-metrics", r.withRateLimit("cron", rateLimitCron, rateWindowDefault, rateLimitKeyIP, r.handleCollectMetrics))

	r.handle("/stream/ws", "/stream/ws", r.handlerOrgRate("stream", rateLimitWebsocket, rateWindowRealtime, r.handleStreamWS))
	r.handle("/stream/sse", "/stream/sse", r.handlerOrgRate("stream", rateLimitWebsocket, rateWindowRealtime, r.handleStreamSSE))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	state := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			state = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if r.hub != nil {
		components["stream"] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     state,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if state != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, envelope{Success: state == "ok", Data: payload})
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		code := recorder.status
		if code == 0 {
			code = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", code,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
			if info.OrganizationID != "" {
				fields = append(fields, "organization_id", info.OrganizationID)
			}
		} else if strings.HasPrefix(req.URL.Path, "/cron/") {
			actor = "cron"
		} else if strings.HasPrefix(req.URL.Path, "/api/v1/") {
			actor = "api_key"
		}
		fields = append(fields, "actor", actor)

		switch {
		case code >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case code >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
	if setter, ok := sr.ResponseWriter.(contextSetter); ok {
		setter.SetContext(ctx)
	}
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

// verifySecret compares a caller-supplied credential with the configured one in constant time.
func (r *Router) verifySecret(w http.ResponseWriter, req *http.Request, expected, supplied, name string) bool {
	if expected == "" {
		r.logger.Error(name+" not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, apperr.KindInternal, "server misconfigured")
		return false
	}
	supplied = strings.TrimSpace(supplied)
	if len(supplied) != len(expected) || subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) != 1 {
		r.logger.Warn(name+" mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, apperr.KindUnauthorized, "invalid "+name)
		return false
	}
	return true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, apperr.KindInvalidInput, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, apperr.KindNotFound, "not found")
}

// pathParts splits the path below prefix into non-empty segments.
func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mustAuth(req *http.Request) authInfo {
	info, _ := authInfoFromContext(req.Context())
	return info
}
