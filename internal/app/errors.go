package app

import (
	"errors"
)

// Sentinel error kinds for admission and session lifecycle. Validation
// rejections are permanent; callers should not retry them.
var (
	ErrSessionNotActive = errors.New("session not active")
	ErrSessionExists    = errors.New("session already active")
	ErrDuplicate        = errors.New("duplicate location event")
	ErrOutOfOrder       = errors.New("location event out of order")
	ErrLowAccuracy      = errors.New("accuracy above threshold")
	ErrPendingLimit     = errors.New("pending buffer full")
	ErrShuttingDown     = errors.New("coordinator shutting down")
)
