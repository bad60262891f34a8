package handlers

import (
	"net/http"

	"quotr/internal/engine/mail"
	"quotr/internal/pkg/errors"
)

type MailHandler struct {
	mail *mail.Service
}

func NewMailHandler(svc *mail.Service) *MailHandler {
	return &MailHandler{mail: svc}
}

func (h *MailHandler) Invitation(w http.ResponseWriter, r *http.Request) {
	var req mail.SendInvitationInput
	if !decode(w, r, &req) {
		return
	}

	receipt, err := h.mail.SendInvitation(r.Context(), caller(r), param(r, "id"), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *MailHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.mail.SendTicket(r.Context(), caller(r), param(r, "id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Pending mails tickets that were never mailed. The body is optional.
func (h *MailHandler) Pending(w http.ResponseWriter, r *http.Request) {
	var req mail.SendPendingInput
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	result, err := h.mail.SendPendingTickets(r.Context(), caller(r), req)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
