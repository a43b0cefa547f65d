package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("session not found")
	ErrCircuitOpen = errors.New("store circuit open")
	ErrStoreWrite  = errors.New("store write failed")
	ErrStoreRead   = errors.New("store read failed")
	ErrStoreOpen   = errors.New("store open failed")
)
