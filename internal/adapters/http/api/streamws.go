// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/pawmates/tracking/internal/adapters/stream"
	"github.com/pawmates/tracking/pkg/logger"
)

// StreamEndpoint upgrades GET /v1/sessions/{id}/stream to a websocket bound
// to one session.
type StreamEndpoint struct {
	streams  Streams
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewStreamEndpoint creates a new stream endpoint.
func NewStreamEndpoint(streams Streams) *StreamEndpoint {
	return &StreamEndpoint{
		streams: streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin from the app shell.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		log: logger.Get().Named("stream-endpoint"),
	}
}

// HandleStream handles GET /v1/sessions/{id}/stream.
func (e *StreamEndpoint) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", false, ErrBadRequest)
		return
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		e.log.Warn(r.Context(), "upgrade failed", logger.Error(err))
		return
	}

	sink := stream.NewWSSink(conn)
	sub, err := e.streams.Subscribe(r.Context(), sessionID, sink)
	if err != nil {
		_ = sink.Close("subscribe failed")
		return
	}

	// Block until the client goes away, then detach.
	sink.Run(r.Context())
	e.streams.Unsubscribe(r.Context(), sub)
}
