package handlers

import (
	"net/http"

	"quotr/internal/engine/directory"
	"quotr/internal/pkg/errors"
)

type UserHandler struct {
	directory *directory.Service
}

func NewUserHandler(dir *directory.Service) *UserHandler {
	return &UserHandler{directory: dir}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req directory.CreateUserInput
	if !decode(w, r, &req) {
		return
	}

	user, err := h.directory.CreateUser(r.Context(), caller(r), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.directory.GetUser(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req directory.UpdateUserInput
	if !decode(w, r, &req) {
		return
	}

	user, err := h.directory.UpdateUser(r.Context(), caller(r), param(r, "id"), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.DeleteUser(r.Context(), caller(r), param(r, "id")); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
