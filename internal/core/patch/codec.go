package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/zeusync/doublezero/internal/core/document"
)

// Encode serializes p as a JSON array of operations. A nil patch encodes
// as an empty array.
func Encode(p Patch) ([]byte, error) {
	if p == nil {
		p = Patch{}
	}
	return json.Marshal(p)
}

type wireOperation struct {
	Op    OpKind            `json:"op"`
	Path  *document.Pointer `json:"path"`
	Value json.RawMessage   `json:"value"`
}

// Decode parses one serialized patch. Anything that is not a JSON array
// of well-formed add/remove/replace operations yields *ParseError.
func Decode(data []byte) (Patch, error) {
	var wire []wireOperation
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ParseError{Input: string(data), Err: err}
	}
	if wire == nil {
		return nil, &ParseError{Input: string(data), Err: errNotArray}
	}

	out := make(Patch, 0, len(wire))
	for i, w := range wire {
		if !w.Op.valid() {
			return nil, &ParseError{Input: string(data), Err: fmt.Errorf("operation %d: %w: %q", i, ErrUnknownOperation, w.Op)}
		}
		if w.Path == nil || !w.Path.Valid() {
			return nil, &ParseError{Input: string(data), Err: fmt.Errorf("operation %d: %w", i, document.ErrInvalidPointer)}
		}
		op := Operation{Op: w.Op, Path: *w.Path}
		if w.Op != OpRemove {
			if len(w.Value) == 0 {
				return nil, &ParseError{Input: string(data), Err: fmt.Errorf("operation %d: %w", i, ErrMissingValue)}
			}
			value, err := document.Unmarshal(w.Value)
			if err != nil {
				return nil, &ParseError{Input: string(data), Err: err}
			}
			op.Value = value
		}
		out = append(out, op)
	}
	return out, nil
}

// ApplyJSON applies p to a serialized document without decoding it into
// a Document first. It is used to merge patches into persisted snapshots.
func ApplyJSON(doc []byte, p Patch) ([]byte, error) {
	if p.IsEmpty() {
		return doc, nil
	}
	for _, op := range p {
		if op.Path == document.Root {
			return applyDecoded(doc, p)
		}
	}
	raw, err := Encode(p)
	if err != nil {
		return nil, err
	}
	ops, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode json patch: %w", err)
	}
	out, err := ops.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply json patch: %w", err)
	}
	return out, nil
}

// applyDecoded handles whole-document operations, which json-patch does
// not address.
func applyDecoded(doc []byte, p Patch) ([]byte, error) {
	decoded, err := document.Unmarshal(doc)
	if err != nil {
		return nil, err
	}
	out, err := Apply(decoded, p)
	if err != nil {
		return nil, err
	}
	return document.Marshal(out)
}
