package store

import (
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("store is closed")
	ErrInvalidName   = errors.New("store name must not be empty")
	ErrDuplicateName = errors.New("duplicate store name")
	ErrUnknownKind   = errors.New("unknown store kind")
)

// PersistenceError is returned when the commit transaction fails. The
// store keeps its last committed value and the caller may retry.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist store %q: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
