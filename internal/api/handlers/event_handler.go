package handlers

import (
	"encoding/json"
	"net/http"

	"quotr/internal/engine/event"
	"quotr/internal/pkg/errors"
)

type EventHandler struct {
	event *event.Service
}

func NewEventHandler(svc *event.Service) *EventHandler {
	return &EventHandler{event: svc}
}

func (h *EventHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.event.Info(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": info})
}

// Details answers ticket holders: ?ticket_id= is the credential.
func (h *EventHandler) Details(w http.ResponseWriter, r *http.Request) {
	details, err := h.event.Details(r.Context(), caller(r), r.URL.Query().Get("ticket_id"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event_details": details})
}

func (h *EventHandler) Configs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.event.List(r.Context(), caller(r))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (h *EventHandler) Config(w http.ResponseWriter, r *http.Request) {
	config, err := h.event.Get(r.Context(), caller(r), param(r, "name"))
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config)
}

func (h *EventHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value json.RawMessage `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}

	config, err := h.event.Update(r.Context(), caller(r), param(r, "name"), req.Value)
	if err != nil {
		errors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config)
}
