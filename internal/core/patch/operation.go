// Package patch implements structural diffs between documents and the
// JSON-Patch style operations that carry them.
package patch

import (
	"encoding/json"
	"fmt"

	"github.com/zeusync/doublezero/internal/core/document"
)

// OpKind is the operation verb.
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpRemove  OpKind = "remove"
	OpReplace OpKind = "replace"
)

func (k OpKind) valid() bool {
	return k == OpAdd || k == OpRemove || k == OpReplace
}

// Operation is one step of a Patch.
type Operation struct {
	Op    OpKind            `json:"op"`
	Path  document.Pointer  `json:"path"`
	Value document.Document `json:"value,omitempty"`
}

// Patch is an ordered sequence of operations.
type Patch []Operation

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p) == 0
}

// MarshalJSON always writes value for add and replace, including null,
// and never for remove.
func (o Operation) MarshalJSON() ([]byte, error) {
	if o.Op == OpRemove {
		return json.Marshal(struct {
			Op   OpKind           `json:"op"`
			Path document.Pointer `json:"path"`
		}{o.Op, o.Path})
	}
	return json.Marshal(struct {
		Op    OpKind            `json:"op"`
		Path  document.Pointer  `json:"path"`
		Value document.Document `json:"value"`
	}{o.Op, o.Path, o.Value})
}

func (o Operation) String() string {
	if o.Op == OpRemove {
		return fmt.Sprintf("%s %s", o.Op, o.Path)
	}
	return fmt.Sprintf("%s %s %v", o.Op, o.Path, o.Value)
}

func add(path document.Pointer, value document.Document) Operation {
	return Operation{Op: OpAdd, Path: path, Value: document.Clone(value)}
}

func remove(path document.Pointer) Operation {
	return Operation{Op: OpRemove, Path: path}
}

func replace(path document.Pointer, value document.Document) Operation {
	return Operation{Op: OpReplace, Path: path, Value: document.Clone(value)}
}
