package httpx

import (
	"net/http"
)

type credentialsRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Organization string `json:"organization"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var body credentialsRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	session, err := r.auth.Signup(req.Context(), body.Email, body.Password)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusCreated, session)
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var body credentialsRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	session, err := r.auth.Login(req.Context(), body.Email, body.Password, body.Organization)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, session)
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var body refreshRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	tokens, err := r.auth.Refresh(req.Context(), body.RefreshToken)
	if err != nil {
		r.writeAppError(w, req, err)
		return
	}
	writeData(w, http.StatusOK, tokens)
}
