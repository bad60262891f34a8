package handlers

import (
	"net/http"

	"quotr/internal/engine/ledger"
	"quotr/internal/pkg/errors"
)

type TicketHandler struct {
	ledger *ledger.Service
}

func NewTicketHandler(led *ledger.Service) *TicketHandler {
	return &TicketHandler{ledger: led}
}

func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.ledger.ListTickets(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ledger.CreateTicketInput
	if !decode(w, r, &req) {
		return
	}

	ticket, err := h.ledger.CreateTicket(r.Context(), caller(r), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.ledger.GetTicket(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *TicketHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ledger.UpdateTicketInput
	if !decode(w, r, &req) {
		return
	}

	ticket, err := h.ledger.UpdateTicket(r.Context(), caller(r), param(r, "id"), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *TicketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteTicket(r.Context(), caller(r), param(r, "id")); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type QuotaHandler struct {
	ledger *ledger.Service
}

func NewQuotaHandler(led *ledger.Service) *QuotaHandler {
	return &QuotaHandler{ledger: led}
}

func (h *QuotaHandler) List(w http.ResponseWriter, r *http.Request) {
	quotas, err := h.ledger.ListQuotas(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotas)
}

func (h *QuotaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ledger.CreateQuotaInput
	if !decode(w, r, &req) {
		return
	}

	q, err := h.ledger.CreateQuota(r.Context(), caller(r), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *QuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.ledger.GetQuota(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *QuotaHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ledger.UpdateQuotaInput
	if !decode(w, r, &req) {
		return
	}

	q, err := h.ledger.UpdateQuota(r.Context(), caller(r), param(r, "id"), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *QuotaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.DeleteQuota(r.Context(), caller(r), param(r, "id")); err != nil {
		errors.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Consume takes one use from the quota and returns what is left.
func (h *QuotaHandler) Consume(w http.ResponseWriter, r *http.Request) {
	q, err := h.ledger.Consume(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
