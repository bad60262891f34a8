package handlers

import (
	"net/http"

	"quotr/internal/engine/render"
	"quotr/internal/pkg/errors"
)

type RenderHandler struct {
	render *render.Service
}

func NewRenderHandler(svc *render.Service) *RenderHandler {
	return &RenderHandler{render: svc}
}

func (h *RenderHandler) Invitation(w http.ResponseWriter, r *http.Request) {
	size, err := queryInt(r, "size", 0)
	if err != nil {
		errors.Write(w, err)
		return
	}

	img, err := h.render.InvitationQR(r.Context(), caller(r), param(r, "id"), size)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writePNG(w, img)
}

func (h *RenderHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	size, err := queryInt(r, "size", 0)
	if err != nil {
		errors.Write(w, err)
		return
	}

	img, err := h.render.TicketQR(r.Context(), caller(r), param(r, "id"), size)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writePNG(w, img)
}

func writePNG(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}
