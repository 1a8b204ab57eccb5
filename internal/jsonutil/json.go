// Package jsonutil provides JSON helpers that report failures as data
// instead of returning early, plus a path flattener used for autocomplete
// and JSON-path template variables.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseResult is the outcome of SafelyParseJSON. When Err is non-nil JSON is nil.
type ParseResult struct {
	JSON any
	Err  error
}

// OK reports whether the text parsed.
func (r ParseResult) OK() bool { return r.Err == nil }

// Object returns the parsed value as an object, if it is one.
func (r ParseResult) Object() (map[string]any, bool) {
	if r.Err != nil {
		return nil, false
	}
	m, ok := r.JSON.(map[string]any)
	return m, ok
}

// SafelyParseJSON parses text and captures any syntax error in the result.
// Numbers decode as float64, matching encoding/json defaults.
func SafelyParseJSON(text string) ParseResult {
	var v any
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&v); err != nil {
		return ParseResult{Err: fmt.Errorf("jsonutil: parse: %w", err)}
	}
	// Trailing data after the first value is a parse error too.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ParseResult{Err: fmt.Errorf("jsonutil: parse: unexpected data after top-level value")}
	}
	return ParseResult{JSON: v}
}

// StringifyResult is the outcome of SafelyStringifyJSON.
type StringifyResult struct {
	JSON string
	Err  error
}

// SafelyStringifyJSON marshals v. A nil v renders as "null". When indent is
// set the output uses two-space indentation.
func SafelyStringifyJSON(v any, indent bool) StringifyResult {
	var (
		b   []byte
		err error
	)
	if indent {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return StringifyResult{Err: fmt.Errorf("jsonutil: stringify: %w", err)}
	}
	return StringifyResult{JSON: string(b)}
}

// IsJSONObjectString reports whether s parses to a JSON object.
func IsJSONObjectString(s string) bool {
	_, ok := SafelyParseJSON(s).Object()
	return ok
}

// Compact normalises a JSON document's whitespace. Invalid input is returned unchanged.
func Compact(s string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}

// ToString renders a JSON value for display: strings are returned as-is,
// everything else is marshalled.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		res := SafelyStringifyJSON(t, false)
		if res.Err != nil {
			return fmt.Sprint(t)
		}
		return res.JSON
	}
}
