package patch

import (
	"errors"
	"fmt"

	"github.com/zeusync/doublezero/internal/core/document"
)

var (
	ErrUnknownOperation = errors.New("unknown patch operation")
	ErrMissingValue     = errors.New("operation requires a value")

	errNotArray = errors.New("patch must be a json array")
)

// InvalidPathError is returned when an operation targets a location that
// does not exist in the document it is applied to.
type InvalidPathError struct {
	Op   OpKind
	Path document.Pointer
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path %q for %s", e.Path, e.Op)
}

// ParseError is returned when bytes received from a peer are not a
// well-formed patch.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse patch: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
