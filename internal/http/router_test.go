package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/splax/statuspage/internal/notify"
	"github.com/splax/statuspage/internal/repository/memory"
	"github.com/splax/statuspage/internal/service/auth"
	"github.com/splax/statuspage/internal/service/healthcheck"
	"github.com/splax/statuspage/internal/service/incident"
	"github.com/splax/statuspage/internal/service/organization"
	"github.com/splax/statuspage/internal/service/registry"
	"github.com/splax/statuspage/internal/service/status"
	"github.com/splax/statuspage/internal/ws"
	"github.com/splax/statuspage/pkg/config"
)

type stubSweeper struct {
	calls int
}

func (s *stubSweeper) Sweep(context.Context) (healthcheck.Report, error) {
	s.calls++
	return healthcheck.Report{Checked: 2, Changed: 1}, nil
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type testServer struct {
	router  *Router
	sweeper *stubSweeper
	dbErr   error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:           "test-secret",
		EncryptionKey:       "test-key",
		AccessTokenTTL:      time.Minute,
		RefreshTokenTTL:     time.Hour,
		TimelineSlice:       10,
		MetricsHistoryLimit: 100,
		PublicIncidentLimit: 10,
	}
	store := memory.New()
	hub := ws.NewHub()
	t.Cleanup(hub.Stop)
	events := notify.NewFanout(logger, time.Second, notify.NewHubPublisher(hub))

	ts := &testServer{sweeper: &stubSweeper{}}
	ts.router = NewRouter(Dependencies{
		Logger:        logger,
		Auth:          auth.New(store, store, logger, cfg),
		Organizations: organization.New(store, store, nil, logger),
		Registry:      registry.New(store, store, events, logger, cfg),
		Incidents:     incident.New(store, store, events, logger, cfg),
		Status:        status.New(store, store, store, store, logger, cfg),
		Sweeper:       ts.sweeper,
		Hub:           hub,
		StatusAPIKey:  "status-key",
		CronToken:     "cron-token",
		DBHealth:      func(context.Context) error { return ts.dbErr },
	})
	t.Cleanup(ts.router.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	var resp response
	if rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, resp
}

func decodeData[T any](t *testing.T, resp response) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}

// onboard signs a user up and creates an organization, returning an organization-scoped token.
func (ts *testServer) onboard(t *testing.T, email, slug string) string {
	t.Helper()
	rec, resp := ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": email, "password": "correct-horse-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", rec.Code, rec.Body.String())
	}
	session := decodeData[auth.Session](t, resp)

	rec, resp = ts.do(t, http.MethodPost, "/organizations", session.Tokens.AccessToken, map[string]string{"name": "Acme " + slug, "slug": slug})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create org status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeData[organizationCreated](t, resp)
	if created.Organization == nil || created.Organization.Slug != slug {
		t.Fatalf("unexpected organization: %+v", created.Organization)
	}
	return created.Tokens.AccessToken
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	rec, resp := ts.do(t, http.MethodGet, "/services", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if resp.Success || resp.Error == nil || resp.Error.Kind != "unauthorized" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestOrganizationRoutesNeedOrganizationToken(t *testing.T) {
	ts := newTestServer(t)
	_, resp := ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": "solo@example.com", "password": "correct-horse-1"})
	session := decodeData[auth.Session](t, resp)

	rec, _ := ts.do(t, http.MethodGet, "/services", session.Tokens.AccessToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without organization, got %d", rec.Code)
	}
	rec, _ = ts.do(t, http.MethodGet, "/organizations", session.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing organizations, got %d", rec.Code)
	}
}

func TestIncidentFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	token := ts.onboard(t, "ops@example.com", "acme")

	rec, resp := ts.do(t, http.MethodGet, "/services", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list services status = %d", rec.Code)
	}
	services := decodeData[[]struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}](t, resp)
	if len(services) != 3 {
		t.Fatalf("expected 3 seeded services, got %d", len(services))
	}
	serviceID := services[0].ID

	rec, resp = ts.do(t, http.MethodPost, "/incidents", token, map[string]string{"service_id": serviceID, "title": "Elevated errors"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create incident status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeData[struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}](t, resp)
	if created.Status != "INVESTIGATING" {
		t.Fatalf("expected INVESTIGATING, got %s", created.Status)
	}

	rec, resp = ts.do(t, http.MethodPost, "/incidents", token, map[string]string{"service_id": serviceID, "title": "elevated errors"})
	if rec.Code != http.StatusConflict || resp.Error.Kind != "conflict" {
		t.Fatalf("expected conflict on duplicate open title, got %d %+v", rec.Code, resp.Error)
	}

	rec, _ = ts.do(t, http.MethodPost, "/incidents/"+created.ID+"/updates", token, map[string]string{"message": "Rolling back"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add update status = %d", rec.Code)
	}

	rec, resp = ts.do(t, http.MethodPatch, "/incidents/"+created.ID+"/status", token, map[string]string{"status": "resolved"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}
	resolved := decodeData[struct {
		Status     string     `json:"status"`
		ResolvedAt *time.Time `json:"resolved_at"`
		Updates    []struct {
			Message string `json:"message"`
		} `json:"updates"`
	}](t, resp)
	if resolved.Status != "RESOLVED" || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved incident: %+v", resolved)
	}
	if len(resolved.Updates) != 3 || resolved.Updates[0].Message != "Status changed to RESOLVED" {
		t.Fatalf("unexpected timeline: %+v", resolved.Updates)
	}

	rec, resp = ts.do(t, http.MethodGet, "/incidents?open=true", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list incidents status = %d", rec.Code)
	}
	if open := decodeData[[]json.RawMessage](t, resp); len(open) != 0 {
		t.Fatalf("expected no open incidents, got %d", len(open))
	}

	rec, resp = ts.do(t, http.MethodGet, "/public/status/ACME", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public status = %d", rec.Code)
	}
	page := decodeData[struct {
		AggregateStatus string            `json:"aggregate_status"`
		RecentIncidents []json.RawMessage `json:"recent_incidents"`
	}](t, resp)
	if page.AggregateStatus != "OPERATIONAL" || len(page.RecentIncidents) != 1 {
		t.Fatalf("unexpected public page: %+v", page)
	}
}

func TestForeignIncidentIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	acme := ts.onboard(t, "a@example.com", "acme")
	globex := ts.onboard(t, "g@example.com", "globex")

	_, resp := ts.do(t, http.MethodGet, "/services", acme, nil)
	services := decodeData[[]struct {
		ID string `json:"id"`
	}](t, resp)
	_, resp = ts.do(t, http.MethodPost, "/incidents", acme, map[string]string{"service_id": services[0].ID, "title": "Outage"})
	created := decodeData[struct {
		ID string `json:"id"`
	}](t, resp)

	rec, resp := ts.do(t, http.MethodGet, "/incidents/"+created.ID, globex, nil)
	if rec.Code != http.StatusNotFound || resp.Error.Kind != "not_found" {
		t.Fatalf("expected 404 for foreign incident, got %d", rec.Code)
	}
	rec, _ = ts.do(t, http.MethodGet, "/incidents/not-a-uuid", acme, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", rec.Code)
	}
}

func TestServiceValidationMapsToBadRequest(t *testing.T) {
	ts := newTestServer(t)
	token := ts.onboard(t, "ops@example.com", "acme")

	rec, resp := ts.do(t, http.MethodPost, "/services", token, map[string]string{"name": "  "})
	if rec.Code != http.StatusBadRequest || resp.Error.Field != "name" {
		t.Fatalf("expected 400 on name, got %d %+v", rec.Code, resp.Error)
	}
	rec, _ = ts.do(t, http.MethodPost, "/services", token, map[string]string{"name": "website"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate service name, got %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/services", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	raw := httptest.NewRecorder()
	ts.router.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", raw.Code)
	}
}

func TestStatusSummaryRequiresAPIKey(t *testing.T) {
	ts := newTestServer(t)
	ts.onboard(t, "ops@example.com", "acme")

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/status?org=acme", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	rec, resp := ts.do(t, http.MethodGet, "/api/v1/status?org=acme", "", nil, "X-API-Key", "status-key")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
	summary := decodeData[struct {
		Status string `json:"status"`
	}](t, resp)
	if summary.Status != "ok" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/status?org=nobody&api_key=status-key", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown org, got %d", rec.Code)
	}
}

func TestCollectMetricsRequiresCronToken(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/cron/collect-metrics", "wrong", nil)
	if rec.Code != http.StatusUnauthorized || ts.sweeper.calls != 0 {
		t.Fatalf("expected 401 and no sweep, got %d (%d calls)", rec.Code, ts.sweeper.calls)
	}
	rec, resp := ts.do(t, http.MethodPost, "/cron/collect-metrics", "", nil, "X-Cron-Token", "cron-token")
	if rec.Code != http.StatusOK || ts.sweeper.calls != 1 {
		t.Fatalf("expected sweep, got %d (%d calls)", rec.Code, ts.sweeper.calls)
	}
	report := decodeData[map[string]float64](t, resp)
	if report["checked"] != 2 || report["changed"] != 1 {
		t.Fatalf("unexpected report: %v", report)
	}
}

func TestSignupIsRateLimited(t *testing.T) {
	ts := newTestServer(t)
	var last *httptest.ResponseRecorder
	var resp response
	for i := 0; i <= rateLimitSignup; i++ {
		last, resp = ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": "bad", "password": "x"})
	}
	if last.Code != http.StatusTooManyRequests || resp.Error.Kind != kindRateLimited {
		t.Fatalf("expected 429, got %d", last.Code)
	}
	if last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining header 0, got %q", last.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestSignupLimitIgnoresForwardedFor(t *testing.T) {
	ts := newTestServer(t)
	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimitSignup; i++ {
		last, _ = ts.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": "bad", "password": "x"},
			"X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rotating forwarded addresses to share one bucket, got %d", last.Code)
	}
}

func TestRateLimitKeyIPUsesRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := rateLimitKeyIP(req); got != "ip:198.51.100.7" {
		t.Fatalf("rateLimitKeyIP = %q", got)
	}
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q", got)
	}
}

func TestIncidentExportReturnsWorkbook(t *testing.T) {
	ts := newTestServer(t)
	token := ts.onboard(t, "ops@example.com", "acme")
	rec, _ := ts.do(t, http.MethodGet, "/incidents/export", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected zip payload")
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ts.dbErr = errors.New("connection refused")
	rec, resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable || resp.Success {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodDelete, "/auth/login", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
