package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/splax/statuspage/internal/apperr"
	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/service/incident"
	"github.com/splax/statuspage/internal/service/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type updateRequest struct {
	Message string `json:"message"`
}

func actorFor(info authInfo) incident.Actor {
	return incident.Actor{UserID: info.UserID, OrganizationID: info.OrganizationID}
}

func incidentFilter(req *http.Request) (incident.Filter, error) {
	query := req.URL.Query()
	filter := incident.Filter{ServiceID: strings.TrimSpace(query.Get("service_id"))}
	if raw := strings.TrimSpace(query.Get("open")); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperr.Invalid("open", "open must be a boolean")
		}
		filter.OpenOnly = open
	}
	limit, err := queryLimit(req)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}

func (r *Router) handleIncidents(w http.ResponseWriter, req *http.Request) {
	info := mustAuth(req)
	switch req.Method {
	case http.MethodGet:
		filter, err := incidentFilter(req)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		incidents, err := r.incidents.List(req.Context(), info.OrganizationID, filter)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		if incidents == nil {
			incidents = []domain.IncidentDetail{}
		}
		writeData(w, http.StatusOK, incidents)
	case http.MethodPost:
		var body incident.CreateInput
		if !decodeJSON(w, req, &body) {
			return
		}
		detail, err := r.incidents.Create(req.Context(), actorFor(info), body)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusCreated, detail)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleIncidentSubroutes(w http.ResponseWriter, req *http.Request) {
	parts := pathParts(req.URL.Path, "/incidents/")
	if len(parts) == 0 || len(parts) > 2 {
		r.notFound(w)
		return
	}
	if len(parts) == 1 {
		if parts[0] == "export" {
			r.handleIncidentExport(w, req)
			return
		}
		r.handleIncident(w, req, parts[0])
		return
	}
	switch parts[1] {
	case "status":
		r.handleIncidentStatus(w, req, parts[0])
	case "updates":
		r.handleIncidentUpdates(w, req, parts[0])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleIncident(w http.ResponseWriter, req *http.Request, incidentID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info := mustAuth(req)
	detail, err := r.incidents.Get(req.Context(), info.OrganizationID, incidentID)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

func (r *Router) handleIncidentStatus(w http.ResponseWriter, req *http.Request, incidentID string) {
	if req.Method != http.MethodPatch && req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	info := mustAuth(req)
	var body incident.StatusInput
	if !decodeJSON(w, req, &body) {
		return
	}
	detail, err := r.incidents.UpdateStatus(req.Context(), actorFor(info), incidentID, body)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

func (r *Router) handleIncidentUpdates(w http.ResponseWriter, req *http.Request, incidentID string) {
	info := mustAuth(req)
	switch req.Method {
	case http.MethodGet:
		updates, err := r.incidents.Timeline(req.Context(), info.OrganizationID, incidentID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		if updates == nil {
			updates = []domain.IncidentUpdate{}
		}
		writeData(w, http.StatusOK, updates)
	case http.MethodPost:
		var body updateRequest
		if !decodeJSON(w, req, &body) {
			return
		}
		update, err := r.incidents.AddUpdate(req.Context(), actorFor(info), incidentID, body.Message)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusCreated, update)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleIncidentExport(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info := mustAuth(req)
	filter, err := incidentFilter(req)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	incidents, err := r.incidents.List(req.Context(), info.OrganizationID, filter)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	data, err := report.IncidentWorkbook(incidents)
	if err != nil {
		r.writeAppError(w, req, apperr.Internal(err))
		return
	}
	filename := fmt.Sprintf("incidents-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
