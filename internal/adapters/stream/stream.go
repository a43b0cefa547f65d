// Package stream fans accepted fixes out to live session subscribers.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/pawmates/tracking/internal/domain/model"
	"github.com/pawmates/tracking/pkg/logger"
	"github.com/pawmates/tracking/pkg/metrics"
)

// Frame types sent to subscribers.
const (
	FrameLocation     = "location"
	FrameSessionEnded = "session_ended"
)

// Frame is the wire envelope delivered to subscribers.
type Frame struct {
	Type     string               `json:"type"`
	Location *model.LocationEvent `json:"location,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// Sink delivers encoded frames to one client. Implementations must be safe
// for use by a single pump goroutine.
type Sink interface {
	// Send writes one frame; it must respect the context deadline.
	Send(ctx context.Context, data []byte) error
	// Close terminates the client connection with a reason.
	Close(reason string) error
}

// Subscriber is one live consumer of a session's fixes. Frames are buffered
// and drained by a dedicated pump goroutine so a slow client never blocks
// the broadcast path.
type Subscriber struct {
	ID        string
	SessionID string

	out    chan []byte
	sink   Sink
	closed bool // guarded by the handler mutex
	reason string
}

// Handler is the subscriber registry. Broadcast never blocks: subscribers
// that cannot keep up are dropped.
type Handler struct {
	mu       sync.Mutex
	sessions map[string]map[*Subscriber]struct{}
	count    int

	buffer      int
	sendTimeout time.Duration
	log         logger.Logger
}

// NewHandler creates a stream handler.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		sessions:    make(map[string]map[*Subscriber]struct{}),
		buffer:      256,
		sendTimeout: 10 * time.Second,
		log:         logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers sink as a live consumer of sessionID and starts its
// pump. The returned subscriber is valid until its sink fails, the session
// is terminated, or Unsubscribe is called.
func (h *Handler) Subscribe(ctx context.Context, sessionID string, sink Sink) (*Subscriber, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrSubscribe)
	}

	sub := &Subscriber{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		out:       make(chan []byte, h.buffer),
		sink:      sink,
	}

	h.mu.Lock()
	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.sessions[sessionID] = set
	}
	set[sub] = struct{}{}
	h.count++
	metrics.UpdateSubscribers(h.count)
	h.mu.Unlock()

	go h.pump(sub)

	h.log.Debug(ctx, "subscribed",
		logger.String("session_id", sessionID),
		logger.String("subscriber_id", sub.ID),
	)
	return sub, nil
}

// Unsubscribe removes sub and closes its sink.
func (h *Handler) Unsubscribe(ctx context.Context, sub *Subscriber) {
	h.mu.Lock()
	removed := h.remove(sub, "unsubscribed")
	h.mu.Unlock()

	if removed {
		h.log.Debug(ctx, "unsubscribed",
			logger.String("session_id", sub.SessionID),
			logger.String("subscriber_id", sub.ID),
		)
	}
}

// Broadcast delivers an accepted fix to every subscriber of its session.
// Subscribers whose buffers are full are dropped rather than awaited.
func (h *Handler) Broadcast(ctx context.Context, ev *model.LocationEvent) {
	data, err := json.Marshal(Frame{Type: FrameLocation, Location: ev})
	if err != nil {
		h.log.Error(ctx, "encode frame", logger.Error(err))
		return
	}

	h.mu.Lock()
	set := h.sessions[ev.SessionID]
	var dropped []*Subscriber
	for sub := range set {
		select {
		case sub.out <- data:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		h.remove(sub, "slow consumer")
		metrics.RecordSubscriberDropped()
	}
	h.mu.Unlock()

	metrics.RecordBroadcast()
	for _, sub := range dropped {
		h.log.Warn(ctx, "dropped slow subscriber",
			logger.String("session_id", sub.SessionID),
			logger.String("subscriber_id", sub.ID),
		)
	}
}

// Terminate notifies and removes every subscriber of sessionID. Called when
// a session completes or is cancelled.
func (h *Handler) Terminate(ctx context.Context, sessionID, reason string) {
	data, err := json.Marshal(Frame{Type: FrameSessionEnded, Reason: reason})
	if err != nil {
		h.log.Error(ctx, "encode frame", logger.Error(err))
		data = nil
	}

	h.mu.Lock()
	set := h.sessions[sessionID]
	for sub := range set {
		if data != nil {
			select {
			case sub.out <- data:
			default: // best effort
			}
		}
		h.remove(sub, reason)
	}
	h.mu.Unlock()
}

// Close terminates all subscribers across all sessions.
func (h *Handler) Close(ctx context.Context) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.Terminate(ctx, id, "shutting down")
	}
}

// Subscribers returns the number of live subscribers across all sessions.
func (h *Handler) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// remove detaches sub from the registry and closes its outbound channel.
// Must be called with h.mu held. Returns false if sub was already removed.
func (h *Handler) remove(sub *Subscriber, reason string) bool {
	if sub.closed {
		return false
	}
	sub.closed = true
	sub.reason = reason

	if set, ok := h.sessions[sub.SessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.sessions, sub.SessionID)
		}
	}
	h.count--
	metrics.UpdateSubscribers(h.count)
	close(sub.out)
	return true
}

// pump drains a subscriber's buffer into its sink. A failed or timed-out
// write drops the subscriber.
func (h *Handler) pump(sub *Subscriber) {
	for data := range sub.out {
		ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
		err := sub.sink.Send(ctx, data)
		cancel()
		if err != nil {
			h.mu.Lock()
			if h.remove(sub, "write failed") {
				metrics.RecordSubscriberDropped()
			}
			h.mu.Unlock()
			// Drain whatever was buffered before the channel closed.
			for range sub.out { //nolint:revive // intentional drain
			}
			break
		}
	}
	_ = sub.sink.Close(sub.reason)
}
