// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pawmates/tracking/pkg/metrics"
)

// HealthHandler reports liveness. The check is shallow: it reads the
// coordinator's readiness flag and never touches the store.
type HealthHandler struct {
	coord Coordinator
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(coord Coordinator) *HealthHandler {
	return &HealthHandler{coord: coord}
}

type healthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// HandleHealth handles GET /healthz.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	if !h.coord.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "shutting down", Ready: false})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Ready: true})
}

// HandleMetrics handles GET /metrics from the private registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
