package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/splax/statuspage/internal/apperr"
)

type authContextKey string

type authInfo struct {
	UserID         string
	OrganizationID string
	Role           string
}

const contextKeyAuth authContextKey = "statuspage-auth-info"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// requireOrg is requireAuth for tokens that carry an organization.
func (r *Router) requireOrg(next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(func(w http.ResponseWriter, req *http.Request) {
		info, _ := authInfoFromContext(req.Context())
		if info.OrganizationID == "" {
			writeError(w, http.StatusUnauthorized, apperr.KindUnauthorized, "organization context required")
			return
		}
		next(w, req)
	})
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, authInfo, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil && strings.HasPrefix(req.URL.Path, "/stream/") {
		// Browsers cannot set headers on EventSource or WebSocket handshakes.
		if q := strings.TrimSpace(req.URL.Query().Get("access_token")); q != "" {
			token, err = q, nil
		}
	}
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, apperr.KindUnauthorized, "authentication required")
		return req.Context(), authInfo{}, false
	}
	principal, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			r.writeAppError(w, req, err)
			return req.Context(), authInfo{}, false
		}
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, apperr.KindUnauthorized, "authentication failed")
		return req.Context(), authInfo{}, false
	}
	info := authInfo{UserID: principal.User.ID, OrganizationID: principal.OrganizationID, Role: principal.Role}
	ctx := context.WithValue(req.Context(), contextKeyAuth, info)
	return ctx, info, true
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
