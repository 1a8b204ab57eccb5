package jsonutil

import (
	"sort"
	"strconv"
)

// FlattenOptions controls how nested values are turned into path keys.
type FlattenOptions struct {
	// FormatIndices renders array positions as "[n]" instead of ".n".
	FormatIndices bool
	// KeepNonTerminal also emits an entry for every intermediate object or array.
	KeepNonTerminal bool
	// Prefix is prepended to every key.
	Prefix string
	// Separator joins object keys. Defaults to ".".
	Separator string
}

// Flatten walks v and returns a map from path key to value. Leaf values and
// empty containers are terminal. The input is never modified.
func Flatten(v any, opts FlattenOptions) map[string]any {
	if opts.Separator == "" {
		opts.Separator = "."
	}
	out := make(map[string]any)
	flattenInto(out, v, opts.Prefix, opts)
	return out
}

// FlattenKeys returns the sorted keys of Flatten(v, opts).
func FlattenKeys(v any, opts FlattenOptions) []string {
	flat := Flatten(v, opts)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flattenInto(out map[string]any, v any, path string, opts FlattenOptions) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			if path != "" {
				out[path] = t
			}
			return
		}
		if path != "" && opts.KeepNonTerminal {
			out[path] = t
		}
		for k, child := range t {
			flattenInto(out, child, joinKey(path, k, opts.Separator), opts)
		}
	case []any:
		if len(t) == 0 {
			if path != "" {
				out[path] = t
			}
			return
		}
		if path != "" && opts.KeepNonTerminal {
			out[path] = t
		}
		for i, child := range t {
			flattenInto(out, child, indexKey(path, i, opts), opts)
		}
	default:
		if path != "" {
			out[path] = t
		}
	}
}

func joinKey(path, key, sep string) string {
	if path == "" {
		return key
	}
	return path + sep + key
}

func indexKey(path string, i int, opts FlattenOptions) string {
	idx := strconv.Itoa(i)
	if opts.FormatIndices {
		return path + "[" + idx + "]"
	}
	return joinKey(path, idx, opts.Separator)
}
