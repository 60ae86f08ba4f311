package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrRegistryClosed       = errors.New("registry is shut down")
	ErrUnauthorized         = errors.New("missing or invalid client cookie")
	ErrEmptyBatch           = errors.New("push batch is empty")
	ErrSessionClosed        = errors.New("session is closed")
	ErrSlowConsumer         = errors.New("session queue is full")
	ErrInvalidConfig        = errors.New("invalid server configuration")
)
