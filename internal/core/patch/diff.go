package patch

import (
	"sort"

	"github.com/zeusync/doublezero/internal/core/document"
)

// Diff returns the operations that turn oldDoc into newDoc.
//
// Mappings are compared key by key and recursed into. Sequences are
// compared positionally and replaced wholesale when any element differs;
// no edit-distance search is attempted. Keys present only in old are
// removed, keys present only in new are added, and type changes replace.
func Diff(oldDoc, newDoc document.Document) Patch {
	var out Patch
	diffValue(&out, document.Root, oldDoc, newDoc)
	return out
}

func diffValue(out *Patch, path document.Pointer, oldValue, newValue document.Document) {
	oldMap, oldIsMap := oldValue.(map[string]any)
	newMap, newIsMap := newValue.(map[string]any)
	if oldIsMap && newIsMap {
		diffMaps(out, path, oldMap, newMap)
		return
	}
	if !document.Equal(oldValue, newValue) {
		*out = append(*out, replace(path, newValue))
	}
}

func diffMaps(out *Patch, path document.Pointer, oldMap, newMap map[string]any) {
	for _, key := range sortedKeys(oldMap) {
		child := path.Child(key)
		newValue, ok := newMap[key]
		if !ok {
			*out = append(*out, remove(child))
			continue
		}
		diffValue(out, child, oldMap[key], newValue)
	}
	for _, key := range sortedKeys(newMap) {
		if _, ok := oldMap[key]; !ok {
			*out = append(*out, add(path.Child(key), newMap[key]))
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
