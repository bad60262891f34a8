package handlers

import (
	"net/http"

	"quotr/internal/engine/directory"
	"quotr/internal/engine/invitations"
	"quotr/internal/engine/ledger"
	"quotr/internal/pkg/errors"
)

type OrgHandler struct {
	directory   *directory.Service
	invitations *invitations.Service
	ledger      *ledger.Service
}

func NewOrgHandler(dir *directory.Service, inv *invitations.Service, led *ledger.Service) *OrgHandler {
	return &OrgHandler{directory: dir, invitations: inv, ledger: led}
}

type OrgRequest struct {
	Name string `json:"name"`
}

type BatchCreateOrgRequest struct {
	Names []string `json:"names"`
}

type BatchDeleteOrgRequest struct {
	IDs []string `json:"ids"`
}

func (h *OrgHandler) List(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.directory.ListOrganisations(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

func (h *OrgHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req OrgRequest
	if !decode(w, r, &req) {
		return
	}

	org, err := h.directory.CreateOrganisation(r.Context(), caller(r), req.Name)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (h *OrgHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchCreateOrgRequest
	if !decode(w, r, &req) {
		return
	}

	orgs, err := h.directory.CreateOrganisations(r.Context(), caller(r), req.Names)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orgs)
}

func (h *OrgHandler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteOrgRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.directory.DeleteOrganisations(r.Context(), caller(r), req.IDs); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrgHandler) Get(w http.ResponseWriter, r *http.Request) {
	org, err := h.directory.GetOrganisation(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (h *OrgHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req OrgRequest
	if !decode(w, r, &req) {
		return
	}

	org, err := h.directory.RenameOrganisation(r.Context(), caller(r), param(r, "id"), req.Name)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (h *OrgHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.DeleteOrganisation(r.Context(), caller(r), param(r, "id")); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrgHandler) Managers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListManagers(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Invitations lists an organisation's invitations; ?usable=true keeps only
// those that can still issue a ticket.
func (h *OrgHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	usable, err := queryBool(r, "usable")
	if err != nil {
		errors.Write(w, err)
		return
	}

	invs, err := h.invitations.ListByOrganisation(r.Context(), caller(r), param(r, "id"), usable)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (h *OrgHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.ledger.ListByOrganisation(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}
