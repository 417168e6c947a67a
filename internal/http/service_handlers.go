package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/service/registry"
)

type statusRequest struct {
	Status string `json:"status"`
}

func (r *Router) handleServices(w http.ResponseWriter, req *http.Request) {
	info := mustAuth(req)
	switch req.Method {
	case http.MethodGet:
		services, err := r.registry.List(req.Context(), info.OrganizationID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		if services == nil {
			services = []domain.Service{}
		}
		writeData(w, http.StatusOK, services)
	case http.MethodPost:
		var body registry.CreateInput
		if !decodeJSON(w, req, &body) {
			return
		}
		svc, err := r.registry.Create(req.Context(), info.OrganizationID, body)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusCreated, svc)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleServiceSubroutes(w http.ResponseWriter, req *http.Request) {
	parts := pathParts(req.URL.Path, "/services/")
	if len(parts) == 0 || len(parts) > 2 {
		r.notFound(w)
		return
	}
	serviceID := parts[0]
	if len(parts) == 1 {
		r.handleService(w, req, serviceID)
		return
	}
	switch parts[1] {
	case "status":
		r.handleServiceStatus(w, req, serviceID)
	case "metrics":
		r.handleServiceMetrics(w, req, serviceID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleService(w http.ResponseWriter, req *http.Request, serviceID string) {
	info := mustAuth(req)
	switch req.Method {
	case http.MethodGet:
		svc, err := r.registry.Get(req.Context(), info.OrganizationID, serviceID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, svc)
	case http.MethodPatch:
		var body registry.UpdateInput
		if !decodeJSON(w, req, &body) {
			return
		}
		svc, err := r.registry.Update(req.Context(), info.OrganizationID, serviceID, body)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, svc)
	case http.MethodDelete:
		if err := r.registry.Delete(req.Context(), info.OrganizationID, serviceID); err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"id": serviceID})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleServiceStatus(w http.ResponseWriter, req *http.Request, serviceID string) {
	if req.Method != http.MethodPut && req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	info := mustAuth(req)
	var body statusRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	status, ok := domain.ParseServiceStatus(body.Status)
	if !ok {
		r.writeAppError(w, req, apperr.Invalid("status", "unknown service status"))
		return
	}
	svc, err := r.registry.SetStatus(req.Context(), info.OrganizationID, serviceID, status)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, svc)
}

func (r *Router) handleServiceMetrics(w http.ResponseWriter, req *http.Request, serviceID string) {
	info := mustAuth(req)
	switch req.Method {
	case http.MethodGet:
		limit, err := queryLimit(req)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		metrics, err := r.registry.Metrics(req.Context(), info.OrganizationID, serviceID, limit)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		if metrics == nil {
			metrics = []domain.ServiceMetric{}
		}
		writeData(w, http.StatusOK, metrics)
	case http.MethodPost:
		var body registry.MetricInput
		if !decodeJSON(w, req, &body) {
			return
		}
		metric, err := r.registry.RecordMetric(req.Context(), info.OrganizationID, serviceID, body)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusCreated, metric)
	default:
		r.methodNotAllowed(w)
	}
}

func queryLimit(req *http.Request) (int, error) {
	raw := strings.TrimSpace(req.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, apperr.Invalid("limit", "limit must be a non-negative integer")
	}
	return limit, nil
}
