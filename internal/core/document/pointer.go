package document

import (
	"errors"
	"strings"
)

var ErrInvalidPointer = errors.New("invalid json pointer")

var (
	pointerEscaper   = strings.NewReplacer("~", "~0", "/", "~1")
	pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")
)

// Pointer is an RFC 6901 JSON pointer. The empty pointer addresses the root.
type Pointer string

// Root addresses the whole document.
const Root Pointer = ""

// Child returns the pointer to key below p.
func (p Pointer) Child(key string) Pointer {
	return p + "/" + Pointer(pointerEscaper.Replace(key))
}

// Tokens splits p into its unescaped reference tokens.
func (p Pointer) Tokens() ([]string, error) {
	if p == Root {
		return nil, nil
	}
	if !strings.HasPrefix(string(p), "/") {
		return nil, ErrInvalidPointer
	}
	parts := strings.Split(string(p)[1:], "/")
	for i, part := range parts {
		parts[i] = pointerUnescaper.Replace(part)
	}
	return parts, nil
}

// Valid reports whether p is syntactically a JSON pointer.
func (p Pointer) Valid() bool {
	return p == Root || strings.HasPrefix(string(p), "/")
}

func (p Pointer) String() string {
	return string(p)
}
