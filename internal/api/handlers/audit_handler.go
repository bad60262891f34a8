package handlers

import (
	"net/http"

	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/platform/audit"
)

type AuditHandler struct {
	audit *audit.Logger
	guard *access.Guard
}

func NewAuditHandler(auditLog *audit.Logger, guard *access.Guard) *AuditHandler {
	return &AuditHandler{audit: auditLog, guard: guard}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Require(caller(r), access.ActionReadAudit, access.Resource{}); err != nil {
		errors.Write(w, err)
		return
	}

	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		errors.Write(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		errors.Write(w, err)
		return
	}
	if limit > 500 {
		limit = 500
	}

	events, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
