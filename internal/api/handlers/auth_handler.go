package handlers

import (
	"net/http"

	"quotr/internal/engine/directory"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/auth"
)

type AuthHandler struct {
	directory *directory.Service
	sessions  *auth.SessionManager
}

func NewAuthHandler(dir *directory.Service, sessions *auth.SessionManager) *AuthHandler {
	return &AuthHandler{directory: dir, sessions: sessions}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.directory.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		errors.Write(w, err)
		return
	}

	tokens, err := h.sessions.Issue(r.Context(), user)
	if err != nil {
		errors.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	tokens, err := h.sessions.Refresh(r.Context(), req.RefreshToken, h.directory.LoadUser)
	if err != nil {
		errors.Write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		errors.Write(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Roles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.directory.Roles())
}

func (h *AuthHandler) Self(w http.ResponseWriter, r *http.Request) {
	user, err := h.directory.Self(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.directory.ChangePassword(r.Context(), caller(r), req.CurrentPassword, req.NewPassword); err != nil {
		errors.Write(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
