package protocol

import "errors"

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrMessageTooLarge  = errors.New("message too large")
	ErrInvalidFrame     = errors.New("frame contains a newline")
)
