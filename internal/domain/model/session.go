package model

import "fmt"

// SessionStatus is the lifecycle state of a walk session.
type SessionStatus string

const (
	StatusScheduled  SessionStatus = "scheduled"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Completed and cancelled are terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// Transition validates and returns the next status.
func (s SessionStatus) Transition(next SessionStatus) (SessionStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

func (s SessionStatus) String() string { return string(s) }
