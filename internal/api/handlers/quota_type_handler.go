package handlers

import (
	"net/http"

	"quotr/internal/engine/catalog"
	"quotr/internal/pkg/errors"
)

type QuotaTypeHandler struct {
	catalog *catalog.Service
}

func NewQuotaTypeHandler(svc *catalog.Service) *QuotaTypeHandler {
	return &QuotaTypeHandler{catalog: svc}
}

type CreateQuotaTypeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateQuotaTypeRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *QuotaTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.List(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *QuotaTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQuotaTypeRequest
	if !decode(w, r, &req) {
		return
	}

	qt, err := h.catalog.Create(r.Context(), caller(r), req.Name, req.Description)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, qt)
}

func (h *QuotaTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	qt, err := h.catalog.Get(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qt)
}

func (h *QuotaTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuotaTypeRequest
	if !decode(w, r, &req) {
		return
	}

	qt, err := h.catalog.Update(r.Context(), caller(r), param(r, "id"), req.Name, req.Description)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, qt)
}

func (h *QuotaTypeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), caller(r), param(r, "id")); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Usage reports the quotas and templates that reference a quota type.
func (h *QuotaTypeHandler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.catalog.Usage(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
