package stream

import "errors"

// Sentinel kinds for streaming errors.
var (
	ErrSubscribe = errors.New("subscribe failed")
	ErrSinkWrite = errors.New("sink write failed")
)
