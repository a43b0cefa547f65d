package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Keepalive tuning for websocket subscribers. The ping period must be
// shorter than the pong wait so a healthy client is never timed out.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// WSSink adapts a websocket connection to the Sink interface. Writes are
// serialized with a mutex because pings and frames come from different
// goroutines.
type WSSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
	once sync.Once
}

// NewWSSink wraps an upgraded connection and arms its read-side keepalive.
func NewWSSink(conn *websocket.Conn) *WSSink {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &WSSink{conn: conn}
}

func (s *WSSink) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWrite, err)
	}
	return nil
}

func (s *WSSink) Close(reason string) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// Run keeps the connection alive until the client goes away or ctx is
// cancelled. It owns the read side (pong replies, close frames) and the
// ping ticker; inbound payloads are discarded, the stream is one-way.
func (s *WSSink) Run(ctx context.Context) {
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = s.Close("going away")
			<-done
			return
		case <-ticker.C:
			s.mu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
			if err != nil {
				_ = s.Close("ping failed")
				<-done
				return
			}
		}
	}
}
