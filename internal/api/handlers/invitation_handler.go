package handlers

import (
	"net/http"

	"quotr/internal/engine/invitations"
	"quotr/internal/engine/ledger"
	"quotr/internal/pkg/errors"
)

type InvitationHandler struct {
	invitations *invitations.Service
	ledger      *ledger.Service
}

func NewInvitationHandler(inv *invitations.Service, led *ledger.Service) *InvitationHandler {
	return &InvitationHandler{invitations: inv, ledger: led}
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	invs, err := h.invitations.ListInvitations(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req invitations.CreateInput
	if !decode(w, r, &req) {
		return
	}

	inv, err := h.invitations.CreateInvitation(r.Context(), caller(r), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvitationHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.GetFull(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Public serves the view shown to whoever holds the invitation link.
func (h *InvitationHandler) Public(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.GetPublic(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req invitations.UpdateInput
	if !decode(w, r, &req) {
		return
	}

	inv, err := h.invitations.UpdateInvitation(r.Context(), caller(r), param(r, "id"), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InvitationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.invitations.DeleteInvitation(r.Context(), caller(r), param(r, "id")); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvitationHandler) Tickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.ledger.ListByInvitation(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *InvitationHandler) Defaults(w http.ResponseWriter, r *http.Request) {
	defaults, err := h.invitations.ListDefaults(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defaults)
}

type DefaultQuotaHandler struct {
	invitations *invitations.Service
}

func NewDefaultQuotaHandler(inv *invitations.Service) *DefaultQuotaHandler {
	return &DefaultQuotaHandler{invitations: inv}
}

func (h *DefaultQuotaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req invitations.CreateDefaultInput
	if !decode(w, r, &req) {
		return
	}

	d, err := h.invitations.CreateDefault(r.Context(), caller(r), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DefaultQuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.invitations.GetDefault(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DefaultQuotaHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req invitations.UpdateDefaultInput
	if !decode(w, r, &req) {
		return
	}

	d, err := h.invitations.UpdateDefault(r.Context(), caller(r), param(r, "id"), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DefaultQuotaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.invitations.DeleteDefault(r.Context(), caller(r), param(r, "id")); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
