package httpx

import (
	"net/http"

	"github.com/splax/statuspage/internal/domain"
	"github.com/splax/statuspage/internal/service/auth"
	"github.com/splax/statuspage/internal/service/organization"
)

type organizationCreated struct {
	Organization *domain.Organization `json:"organization"`
	Tokens       auth.TokenPair       `json:"tokens"`
}

func (r *Router) handleOrganizations(w http.ResponseWriter, req *http.Request) {
	info := mustAuth(req)
	switch req.Method {
	case http.MethodGet:
		orgs, err := r.organizations.ListForUser(req.Context(), info.UserID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		if orgs == nil {
			orgs = []domain.Organization{}
		}
		writeData(w, http.StatusOK, orgs)
	case http.MethodPost:
		var body organization.CreateInput
		if !decodeJSON(w, req, &body) {
			return
		}
		org, err := r.organizations.Create(req.Context(), info.UserID, body)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		tokens, err := r.auth.IssueForOrganization(req.Context(), info.UserID, org.ID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusCreated, organizationCreated{Organization: org, Tokens: tokens})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleOrganization(w http.ResponseWriter, req *http.Request) {
	info := mustAuth(req)
	switch req.Method {
	case http.MethodGet:
		org, err := r.organizations.Get(req.Context(), info.UserID, info.OrganizationID)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, org)
	case http.MethodPatch:
		var body organization.UpdateInput
		if !decodeJSON(w, req, &body) {
			return
		}
		org, err := r.organizations.Update(req.Context(), info.UserID, info.OrganizationID, body)
		if err != nil {
			r.writeAppError(w, req, err)
			return
		}
		writeData(w, http.StatusOK, org)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleOrganizationMembers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info := mustAuth(req)
	var body organization.MemberInput
	if !decodeJSON(w, req, &body) {
		return
	}
	member, err := r.organizations.AddMember(req.Context(), info.UserID, info.OrganizationID, body)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusCreated, member)
}
