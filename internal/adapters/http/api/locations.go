// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/pawmates/tracking/internal/app"
	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/metrics"
)

// LocationsHandler is the HTTP fallback ingest path for devices that cannot
// speak to the broker. Fixes go through the same admission algorithm as
// broker traffic, synchronously, so the client gets a precise verdict.
type LocationsHandler struct {
	coord Coordinator
}

// NewLocationsHandler creates a new locations handler.
func NewLocationsHandler(coord Coordinator) *LocationsHandler {
	return &LocationsHandler{coord: coord}
}

// HandlePostLocation handles POST /v1/sessions/{id}/locations.
func (h *LocationsHandler) HandlePostLocation(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", false, errors.Join(ErrBadRequest, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", false, errors.Join(ErrBadRequest, err))
		return
	}

	ev := &model.LocationEvent{
		SessionID:      sessionID,
		LocationID:     req.LocationID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		AltitudeMeters: req.AltitudeMeters,
		Timestamp:      req.Timestamp,
	}

	metrics.RecordEventIngested("http")
	if err := h.coord.Admit(r.Context(), ev); err != nil {
		writeAdmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// writeAdmitError maps admission verdicts to HTTP statuses. Validation
// rejections are permanent; resource and shutdown rejections are retryable.
func writeAdmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotActive):
		writeError(w, http.StatusNotFound, "session_not_active", false, err)
	case errors.Is(err, app.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", false, err)
	case errors.Is(err, app.ErrOutOfOrder):
		writeError(w, http.StatusUnprocessableEntity, "out_of_order", false, err)
	case errors.Is(err, app.ErrLowAccuracy):
		writeError(w, http.StatusUnprocessableEntity, "low_accuracy", false, err)
	case errors.Is(err, model.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, "invalid_event", false, err)
	case errors.Is(err, app.ErrPendingLimit):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "resource_exhausted", true, err)
	case errors.Is(err, app.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", true, err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", true, err)
	}
}
