package handlers

import (
	"net/http"

	"quotr/internal/platform/observability"
)

type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{handler: metrics.Handler()}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
