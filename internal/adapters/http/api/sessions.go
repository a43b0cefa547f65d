// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/pawmates/tracking/internal/app"
)

// SessionsHandler drives the session lifecycle over HTTP.
type SessionsHandler struct {
	coord Coordinator
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(coord Coordinator) *SessionsHandler {
	return &SessionsHandler{coord: coord}
}

// HandleStart handles POST /v1/sessions/{id}/start.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := h.coord.StartSession(r.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrSessionExists):
			writeError(w, http.StatusConflict, "session_exists", false, err)
		case errors.Is(err, app.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, "shutting_down", true, err)
		default:
			writeError(w, http.StatusBadRequest, "bad_request", false, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, ackResponse{Status: "started"})
}

// HandleComplete handles POST /v1/sessions/{id}/complete.
func (h *SessionsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.end(w, r, h.coord.CompleteSession, "completed")
}

// HandleCancel handles POST /v1/sessions/{id}/cancel.
func (h *SessionsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.end(w, r, h.coord.CancelSession, "cancelled")
}

func (h *SessionsHandler) end(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error, status string) {
	sessionID := r.PathValue("id")
	if err := fn(r.Context(), sessionID); err != nil {
		if errors.Is(err, app.ErrSessionNotActive) {
			writeError(w, http.StatusNotFound, "session_not_active", false, err)
			return
		}
		writeError(w, http.StatusConflict, "invalid_transition", false, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: status})
}

// HandleStats handles GET /v1/sessions/{id}/stats. Only active sessions have
// live statistics; finished sessions are served by the store.
func (h *SessionsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	stats, err := h.coord.Stats(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session_not_active", false, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
