package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafelyParseJSON_Invalid(t *testing.T) {
	res := SafelyParseJSON("not json")
	require.Error(t, res.Err)
	assert.Nil(t, res.JSON)
	assert.False(t, res.OK())
}

func TestSafelyParseJSON_Object(t *testing.T) {
	res := SafelyParseJSON(`{"x":1}`)
	require.NoError(t, res.Err)
	assert.Equal(t, map[string]any{"x": float64(1)}, res.JSON)

	obj, ok := res.Object()
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["x"])
}

func TestSafelyParseJSON_TrailingData(t *testing.T) {
	for _, in := range []string{`{"x":1}}`, `{"x":1} {"y":2}`, `1 2`} {
		res := SafelyParseJSON(in)
		assert.Error(t, res.Err, in)
		assert.Nil(t, res.JSON, in)
	}
}

func TestSafelyParseJSON_Scalars(t *testing.T) {
	res := SafelyParseJSON(" \"hello\" \n")
	require.NoError(t, res.Err)
	assert.Equal(t, "hello", res.JSON)

	res = SafelyParseJSON("null")
	require.NoError(t, res.Err)
	assert.Nil(t, res.JSON)
	_, ok := res.Object()
	assert.False(t, ok)
}

func TestSafelyStringifyJSON(t *testing.T) {
	assert.Equal(t, "null", SafelyStringifyJSON(nil, false).JSON)
	assert.Equal(t, `{"a":1}`, SafelyStringifyJSON(map[string]int{"a": 1}, false).JSON)
	assert.Equal(t, "{\n  \"a\": 1\n}", SafelyStringifyJSON(map[string]int{"a": 1}, true).JSON)

	res := SafelyStringifyJSON(make(chan int), false)
	assert.Error(t, res.Err)
	assert.Empty(t, res.JSON)
}

func TestIsJSONObjectString(t *testing.T) {
	assert.True(t, IsJSONObjectString(`{"a": [1]}`))
	assert.False(t, IsJSONObjectString(`[1, 2]`))
	assert.False(t, IsJSONObjectString(`{`))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "plain", ToString("plain"))
	assert.Equal(t, "3", ToString(float64(3)))
	assert.Equal(t, `["a"]`, ToString([]any{"a"}))
}

func TestFlatten_FormatIndices(t *testing.T) {
	in := SafelyParseJSON(`{"a": {"b": 1, "c": [2, 3]}}`).JSON

	keys := FlattenKeys(in, FlattenOptions{FormatIndices: true})
	assert.Equal(t, []string{"a.b", "a.c[0]", "a.c[1]"}, keys)

	flat := Flatten(in, FlattenOptions{FormatIndices: true})
	assert.Equal(t, float64(1), flat["a.b"])
	assert.Equal(t, float64(3), flat["a.c[1]"])
}

func TestFlatten_KeepNonTerminal(t *testing.T) {
	in := SafelyParseJSON(`{"a": {"b": 1, "c": [2, 3]}}`).JSON

	keys := FlattenKeys(in, FlattenOptions{FormatIndices: true, KeepNonTerminal: true})
	assert.Equal(t, []string{"a", "a.b", "a.c", "a.c[0]", "a.c[1]"}, keys)
}

func TestFlatten_DottedIndices(t *testing.T) {
	in := SafelyParseJSON(`{"a": [{"b": true}]}`).JSON
	assert.Equal(t, []string{"a.0.b"}, FlattenKeys(in, FlattenOptions{}))
}

func TestFlatten_PrefixSeparatorAndEmptyContainers(t *testing.T) {
	in := SafelyParseJSON(`{"a": {}, "b": [], "c": {"d": null}}`).JSON
	flat := Flatten(in, FlattenOptions{Prefix: "input", Separator: "/"})
	assert.Contains(t, flat, "input/a")
	assert.Contains(t, flat, "input/b")
	assert.Contains(t, flat, "input/c/d")
	assert.Nil(t, flat["input/c/d"])
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"a": map[string]any{"b": []any{1, 2}}}
	_ = Flatten(in, FlattenOptions{FormatIndices: true, KeepNonTerminal: true})
	assert.Equal(t, map[string]any{"a": map[string]any{"b": []any{1, 2}}}, in)
}

func TestFlatten_Scalar(t *testing.T) {
	assert.Empty(t, Flatten("x", FlattenOptions{}))
	assert.Equal(t, map[string]any{"root": "x"}, Flatten("x", FlattenOptions{Prefix: "root"}))
}
