package httpx

import (
	"net/http"
	"strings"

	"github.com/splax/statuspage/internal/apperr"
)

func (r *Router) handlePublicStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	parts := pathParts(req.URL.Path, "/public/status/")
	if len(parts) != 1 {
		r.notFound(w)
		return
	}
	page, err := r.status.Public(req.Context(), parts[0])
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (r *Router) handleStatusSummary(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	key := req.Header.Get("X-API-Key")
	if strings.TrimSpace(key) == "" {
		key = req.URL.Query().Get("api_key")
	}
	if !r.verifySecret(w, req, r.statusAPIKey, key, "api key") {
		return
	}
	slug := strings.TrimSpace(req.URL.Query().Get("org"))
	if slug == "" {
		r.writeAppError(w, req, apperr.Invalid("org", "org query parameter required"))
		return
	}
	summary, err := r.status.Summary(req.Context(), slug)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (r *Router) handleCollectMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	token := req.Header.Get("X-Cron-Token")
	if strings.TrimSpace(token) == "" {
		token, _ = bearerToken(req.Header.Get("Authorization"))
	}
	if !r.verifySecret(w, req, r.cronToken, token, "cron token") {
		return
	}
	if r.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, apperr.KindInternal, "health sweep is not configured")
		return
	}
	report, err := r.sweeper.Sweep(req.Context())
	if err != nil {
		r.writeAppError(w, req, apperr.Internal(err))
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"checked":     report.Checked,
		"skipped":     report.Skipped,
		"changed":     report.Changed,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	})
}
