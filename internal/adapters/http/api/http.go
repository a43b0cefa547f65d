// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/go-playground/validator/v10"

	"github.com/pawmates/tracking/internal/adapters/repository"
	"github.com/pawmates/tracking/internal/adapters/stream"
	"github.com/pawmates/tracking/internal/domain/model"
)

// Coordinator is the session-facing surface the handlers need.
type Coordinator interface {
	StartSession(ctx context.Context, sessionID string) error
	CompleteSession(ctx context.Context, sessionID string) error
	CancelSession(ctx context.Context, sessionID string) error
	Admit(ctx context.Context, ev *model.LocationEvent) error
	Stats(ctx context.Context, sessionID string) (*model.SessionStats, error)
	Ready() bool
}

// Streams is the live-view surface used by the websocket endpoint.
type Streams interface {
	Subscribe(ctx context.Context, sessionID string, sink stream.Sink) (*stream.Subscriber, error)
	Unsubscribe(ctx context.Context, sub *stream.Subscriber)
}

// HistoryReader serves stored tracks, bypassing the coordinator.
type HistoryReader interface {
	History(ctx context.Context, sessionID string, q repository.HistoryQuery) ([]*model.LocationEvent, error)
}

// Server wires HTTP routes for the tracking API.
type Server struct {
	locationsHandler *LocationsHandler
	sessionsHandler  *SessionsHandler
	historyHandler   *HistoryHandler
	streamHandler    *StreamEndpoint
	healthHandler    *HealthHandler

	limiter *ClientLimiter
}

// NewServer creates an API server with all handlers.
func NewServer(coord Coordinator, streams Streams, history HistoryReader, opts ...Option) *Server {
	s := &Server{
		locationsHandler: NewLocationsHandler(coord),
		sessionsHandler:  NewSessionsHandler(coord),
		historyHandler:   NewHistoryHandler(history),
		streamHandler:    NewStreamEndpoint(streams),
		healthHandler:    NewHealthHandler(coord),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewClientLimiter(100.0/60.0, 20)
	}
	return s
}

// Register attaches all HTTP routes to mux. External write endpoints pass
// through the admission limiter; health and metrics do not.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	limited := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(RateLimitMiddleware(s.limiter, h), endpoint)
	}

	mux.HandleFunc("POST /v1/sessions/{id}/locations", limited(s.locationsHandler.HandlePostLocation, "locations"))
	mux.HandleFunc("GET /v1/sessions/{id}/locations", MetricsMiddleware(s.historyHandler.HandleGetHistory, "history"))
	mux.HandleFunc("GET /v1/sessions/{id}/stream", MetricsMiddleware(s.streamHandler.HandleStream, "stream"))
	mux.HandleFunc("POST /v1/sessions/{id}/start", limited(s.sessionsHandler.HandleStart, "session_start"))
	mux.HandleFunc("POST /v1/sessions/{id}/complete", limited(s.sessionsHandler.HandleComplete, "session_complete"))
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", limited(s.sessionsHandler.HandleCancel, "session_cancel"))
	mux.HandleFunc("GET /v1/sessions/{id}/stats", MetricsMiddleware(s.sessionsHandler.HandleStats, "session_stats"))
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
}

// validate checks request bodies against their struct tags.
var validate = validator.New() //nolint:gochecknoglobals // stateless validator shared by handlers

// locationRequest mirrors the ingest body for POST .../locations. The
// session ID comes from the path, never the body.
type locationRequest struct {
	LocationID     string   `json:"location_id" validate:"required"`
	Latitude       float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64  `json:"longitude" validate:"gte=-180,lte=180"`
	AccuracyMeters float64  `json:"accuracy_meters" validate:"gte=0"`
	AltitudeMeters *float64 `json:"altitude_meters,omitempty"`
	Timestamp      time.Time `json:"timestamp" validate:"required"`
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Retryable tells mobile clients whether resubmitting the same payload
	// can ever succeed.
	Retryable bool `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, retryable bool, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Retryable: retryable})
}
