package ingest

import "errors"

// Sentinel kinds for broker errors.
var (
	ErrConnect       = errors.New("broker connect failed")
	ErrPublish       = errors.New("publish failed")
	ErrSubscribe     = errors.New("subscribe failed")
	ErrDecodeControl = errors.New("decode control message failed")
)
