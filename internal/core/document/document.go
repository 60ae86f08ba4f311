// Package document holds the JSON-shaped value model shared by the diff
// engine, the patch log and the local store.
//
// A Document is any tree of map[string]any, []any and JSON scalars
// (string, float64, bool, nil), exactly what encoding/json produces when
// decoding into an empty interface.
package document

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Document is the root value of a store.
type Document = any

// Empty returns the empty document new stores fold their patch log over.
func Empty() Document {
	return map[string]any{}
}

// IsEmpty reports whether doc is nil or an empty mapping.
func IsEmpty(doc Document) bool {
	if doc == nil {
		return true
	}
	m, ok := doc.(map[string]any)
	return ok && len(m) == 0
}

// Normalize converts an arbitrary Go value into the canonical document
// shape by round-tripping it through JSON. Structs become mappings and
// every number becomes a float64.
func Normalize(v any) (Document, error) {
	if isCanonical(v) {
		return Clone(v), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return Unmarshal(raw)
}

// Unmarshal decodes raw JSON into a Document.
func Unmarshal(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Marshal encodes a Document as JSON.
func Marshal(doc Document) ([]byte, error) {
	return json.Marshal(doc)
}

// Clone returns a deep copy of doc. Only canonical container types are
// copied; scalars are immutable and shared.
func Clone(doc Document) Document {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = Clone(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// Equal reports structural equality of two documents.
func Equal(a, b Document) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ac := range av {
			bc, ok := bv[k]
			if !ok || !Equal(ac, bc) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	case string, float64, bool:
		return a == b
	default:
		return reflect.DeepEqual(a, b)
	}
}

func isCanonical(v any) bool {
	switch t := v.(type) {
	case nil, string, float64, bool:
		return true
	case map[string]any:
		for _, child := range t {
			if !isCanonical(child) {
				return false
			}
		}
		return true
	case []any:
		for _, child := range t {
			if !isCanonical(child) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
