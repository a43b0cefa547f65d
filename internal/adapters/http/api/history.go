// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pawmates/tracking/internal/adapters/repository"
)

// HistoryHandler serves stored tracks. Reads bypass the coordinator: a
// finished session has no in-memory state but its track remains queryable.
type HistoryHandler struct {
	store HistoryReader
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store HistoryReader) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// HandleGetHistory handles GET /v1/sessions/{id}/locations.
// Query parameters: from, to (RFC3339) and limit.
func (h *HistoryHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	q, err := parseHistoryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", false, err)
		return
	}

	events, err := h.store.History(r.Context(), sessionID, q)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", false, err)
		case errors.Is(err, repository.ErrCircuitOpen):
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", true, err)
		default:
			writeError(w, http.StatusInternalServerError, "internal", true, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func parseHistoryQuery(r *http.Request) (repository.HistoryQuery, error) {
	var q repository.HistoryQuery

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.Join(ErrBadRequest, errors.New("from must be RFC3339"))
		}
		q.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errors.Join(ErrBadRequest, errors.New("to must be RFC3339"))
		}
		q.To = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return q, errors.Join(ErrBadRequest, errors.New("limit must be a positive integer"))
		}
		q.Limit = n
	}
	return q, nil
}
