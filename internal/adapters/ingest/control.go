package ingest

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Control actions accepted on the control subject.
const (
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

// ControlMessage drives session lifecycle transitions from the broker.
type ControlMessage struct {
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeControlMessage parses and checks a control payload. The session ID
// may be omitted from the payload when the subject already carries it.
func DecodeControlMessage(data []byte, subjectSessionID string) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeControl, err)
	}
	if msg.SessionID == "" {
		msg.SessionID = subjectSessionID
	}
	if msg.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrDecodeControl)
	}
	switch msg.Action {
	case ActionStart, ActionComplete, ActionCancel:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrDecodeControl, msg.Action)
	}
	return &msg, nil
}
