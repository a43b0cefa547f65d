package model

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidEvent      = errors.New("invalid location event")
	ErrEncodeEvent       = errors.New("encode location event failed")
	ErrDecodeEvent       = errors.New("decode location event failed")
	ErrInvalidTransition = errors.New("invalid session transition")
)
