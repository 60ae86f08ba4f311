package client

import "errors"

// Client-specific errors
var (
	ErrClientClosed   = errors.New("client is closed")
	ErrNotRegistered  = errors.New("client is not registered")
	ErrInvalidConfig  = errors.New("invalid client configuration")
	ErrTransport      = errors.New("sync transport failed")
	ErrUnexpectedCode = errors.New("unexpected response status")
)
