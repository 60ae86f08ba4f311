package patch

import (
	"fmt"
	"strconv"

	"github.com/zeusync/doublezero/internal/core/document"
)

// Apply returns the result of applying p to doc in order. doc is not
// modified. A replace or remove of a missing location, or an add below a
// missing parent, fails with *InvalidPathError and nothing is applied.
func Apply(doc document.Document, p Patch) (document.Document, error) {
	out := document.Clone(doc)
	for _, op := range p {
		var err error
		if out, err = applyOperation(out, op); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOperation(doc document.Document, op Operation) (document.Document, error) {
	if !op.Op.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op.Op)
	}
	tokens, err := op.Path.Tokens()
	if err != nil {
		return nil, &InvalidPathError{Op: op.Op, Path: op.Path}
	}
	if len(tokens) == 0 {
		if op.Op == OpRemove {
			return nil, nil
		}
		return document.Clone(op.Value), nil
	}
	return update(doc, tokens, op)
}

// update walks tokens below node and returns node with op applied at the
// end of the walk. Sequences may be reallocated, so every level stores
// the returned child back into its parent.
func update(node document.Document, tokens []string, op Operation) (document.Document, error) {
	if len(tokens) == 1 {
		return applyAt(node, tokens[0], op)
	}
	invalid := &InvalidPathError{Op: op.Op, Path: op.Path}
	switch container := node.(type) {
	case map[string]any:
		child, ok := container[tokens[0]]
		if !ok {
			return nil, invalid
		}
		next, err := update(child, tokens[1:], op)
		if err != nil {
			return nil, err
		}
		container[tokens[0]] = next
		return container, nil
	case []any:
		i, ok := index(tokens[0], len(container))
		if !ok {
			return nil, invalid
		}
		next, err := update(container[i], tokens[1:], op)
		if err != nil {
			return nil, err
		}
		container[i] = next
		return container, nil
	default:
		return nil, invalid
	}
}

func applyAt(node document.Document, token string, op Operation) (document.Document, error) {
	invalid := &InvalidPathError{Op: op.Op, Path: op.Path}
	switch container := node.(type) {
	case map[string]any:
		_, exists := container[token]
		switch op.Op {
		case OpAdd:
			container[token] = document.Clone(op.Value)
		case OpReplace:
			if !exists {
				return nil, invalid
			}
			container[token] = document.Clone(op.Value)
		case OpRemove:
			if !exists {
				return nil, invalid
			}
			delete(container, token)
		}
		return container, nil
	case []any:
		if op.Op == OpAdd {
			if token == "-" {
				return append(container, document.Clone(op.Value)), nil
			}
			i, ok := index(token, len(container)+1)
			if !ok {
				return nil, invalid
			}
			container = append(container, nil)
			copy(container[i+1:], container[i:])
			container[i] = document.Clone(op.Value)
			return container, nil
		}
		i, ok := index(token, len(container))
		if !ok {
			return nil, invalid
		}
		if op.Op == OpReplace {
			container[i] = document.Clone(op.Value)
			return container, nil
		}
		return append(container[:i], container[i+1:]...), nil
	default:
		return nil, invalid
	}
}

// index parses an array reference token and checks it against limit.
func index(token string, limit int) (int, bool) {
	i, err := strconv.Atoi(token)
	if err != nil || i < 0 || i >= limit || strconv.Itoa(i) != token {
		return 0, false
	}
	return i, true
}
