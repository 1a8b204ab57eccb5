package invocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/model"
)

func canon(c model.CanonicalName) *model.CanonicalName { return &c }
func f64(f float64) *float64                           { return &f }
func i64(n int64) *int64                               { return &n }

func openAIDefs() []model.InvocationParameterDefinition {
	return []model.InvocationParameterDefinition{
		{InvocationName: "temperature", CanonicalName: canon(model.CanonicalTemperature), InvocationInputField: model.FieldValueFloat, DefaultValue: 1.0},
		{InvocationName: "max_completion_tokens", CanonicalName: canon(model.CanonicalMaxCompletionTokens), InvocationInputField: model.FieldValueInt},
		{InvocationName: "seed", CanonicalName: canon(model.CanonicalRandomSeed), InvocationInputField: model.FieldValueInt},
	}
}

func anthropicDefs() []model.InvocationParameterDefinition {
	return []model.InvocationParameterDefinition{
		{InvocationName: "max_tokens", CanonicalName: canon(model.CanonicalMaxCompletionTokens), InvocationInputField: model.FieldValueInt, DefaultValue: float64(1024), Required: true},
		{InvocationName: "temperature", CanonicalName: canon(model.CanonicalTemperature), InvocationInputField: model.FieldValueFloat, DefaultValue: 1.0, MinValue: f64(0), MaxValue: f64(1)},
		{InvocationName: "stop_sequences", CanonicalName: canon(model.CanonicalStopSequences), InvocationInputField: model.FieldValueStringList},
	}
}

func TestAreEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Identifier
		want bool
	}{
		{"same name", Identifier{InvocationName: "x"}, Identifier{InvocationName: "x"}, true},
		{"different names, no canonical", Identifier{InvocationName: "x"}, Identifier{InvocationName: "y"}, false},
		{"canonical match", Identifier{InvocationName: "max_tokens", CanonicalName: canon(model.CanonicalMaxCompletionTokens)},
			Identifier{InvocationName: "max_completion_tokens", CanonicalName: canon(model.CanonicalMaxCompletionTokens)}, true},
		{"one canonical missing", Identifier{InvocationName: "a", CanonicalName: canon(model.CanonicalTopP)}, Identifier{InvocationName: "b"}, false},
		{"canonical mismatch", Identifier{InvocationName: "a", CanonicalName: canon(model.CanonicalTopP)},
			Identifier{InvocationName: "b", CanonicalName: canon(model.CanonicalTemperature)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AreEqual(tt.a, tt.b))
			assert.Equal(t, tt.want, AreEqual(tt.b, tt.a), "symmetric")
		})
	}
}

func TestConstrainToDefinition_ProviderSwitch(t *testing.T) {
	inputs := []model.InvocationParameterInput{
		{InvocationName: "max_completion_tokens", CanonicalName: canon(model.CanonicalMaxCompletionTokens), ValueInt: i64(256)},
		{InvocationName: "seed", CanonicalName: canon(model.CanonicalRandomSeed), ValueInt: i64(7)},
		{InvocationName: "temperature", ValueFloat: f64(0.2)},
	}
	defs := anthropicDefs()

	out := ConstrainToDefinition(inputs, defs)
	require.Len(t, out, 2)
	assert.LessOrEqual(t, len(out), len(inputs))

	assert.Equal(t, "max_tokens", out[0].InvocationName, "stale name repaired via canonical name")
	assert.Equal(t, int64(256), *out[0].ValueInt)
	assert.Equal(t, "temperature", out[1].InvocationName)

	names := map[string]bool{}
	for _, d := range defs {
		names[d.InvocationName] = true
	}
	for _, in := range out {
		assert.True(t, names[in.InvocationName], "%s must name a definition", in.InvocationName)
	}

	// Source slice untouched.
	assert.Equal(t, "max_completion_tokens", inputs[0].InvocationName)
}

func TestConstrainToDefinition_NoDefinitions(t *testing.T) {
	inputs := []model.InvocationParameterInput{{InvocationName: "temperature", ValueFloat: f64(1)}}
	assert.Empty(t, ConstrainToDefinition(inputs, nil))
}

func TestMergeWithDefaults_AddsOnePerMissingDefault(t *testing.T) {
	out := MergeWithDefaults(nil, anthropicDefs())
	require.Len(t, out, 2)
	assert.Equal(t, "max_tokens", out[0].InvocationName)
	assert.Equal(t, int64(1024), *out[0].ValueInt)
	assert.Equal(t, "temperature", out[1].InvocationName)
	assert.Equal(t, 1.0, *out[1].ValueFloat)
}

func TestMergeWithDefaults_NeverClobbers(t *testing.T) {
	inputs := []model.InvocationParameterInput{
		{InvocationName: "temperature", CanonicalName: canon(model.CanonicalTemperature), ValueFloat: f64(0.3)},
	}
	out := MergeWithDefaults(inputs, anthropicDefs())
	require.Len(t, out, 2)
	assert.Equal(t, 0.3, *out[0].ValueFloat)
	assert.Equal(t, "max_tokens", out[1].InvocationName)

	// Idempotent once every default is present.
	again := MergeWithDefaults(out, anthropicDefs())
	assert.Equal(t, out, again)
}

func TestMergeWithDefaults_FillsEmptyMatchingInput(t *testing.T) {
	inputs := []model.InvocationParameterInput{{InvocationName: "max_tokens"}}
	out := MergeWithDefaults(inputs, anthropicDefs())
	require.Len(t, out, 2)
	assert.Equal(t, int64(1024), *out[0].ValueInt)
	assert.Nil(t, inputs[0].ValueInt, "input slice not modified")
}

func TestMergeWithDefaults_SkipsMistypedDefault(t *testing.T) {
	defs := []model.InvocationParameterDefinition{
		{InvocationName: "n", InvocationInputField: model.FieldValueInt, DefaultValue: "three"},
	}
	assert.Empty(t, MergeWithDefaults(nil, defs))
}

func TestSetValueAndValueFor(t *testing.T) {
	in := model.InvocationParameterInput{InvocationName: "x"}

	out, err := SetValue(in, model.FieldValueInt, float64(3))
	require.NoError(t, err)
	v, err := ValueFor(out, model.FieldValueInt)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = SetValue(in, model.FieldValueInt, 3.5)
	assert.Error(t, err)

	out, err = SetValue(in, model.FieldValueStringList, []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.ValueStringList)

	_, err = SetValue(in, model.FieldValueStringList, []any{"a", 1})
	assert.Error(t, err)

	out, err = SetValue(in, model.FieldValueJSON, map[string]any{"type": "json_object"})
	require.NoError(t, err)
	assert.True(t, HasValue(out, model.FieldValueJSON))

	_, err = ValueFor(in, "value_nope")
	assert.Error(t, err)
}

func TestUpsertAndDelete(t *testing.T) {
	inputs := []model.InvocationParameterInput{
		{InvocationName: "temperature", ValueFloat: f64(0.1)},
		{InvocationName: "seed", ValueInt: i64(1)},
	}
	out := Upsert(inputs, model.InvocationParameterInput{InvocationName: "temperature", ValueFloat: f64(0.9)})
	require.Len(t, out, 2)
	assert.Equal(t, 0.9, *out[0].ValueFloat)
	assert.Equal(t, 0.1, *inputs[0].ValueFloat)

	out = Upsert(out, model.InvocationParameterInput{InvocationName: "top_p", ValueFloat: f64(0.5)})
	assert.Len(t, out, 3)

	out = Delete(out, Identifier{InvocationName: "seed"})
	require.Len(t, out, 2)
	assert.Equal(t, "top_p", out[1].InvocationName)
}

func TestToMap(t *testing.T) {
	m := ToMap([]model.InvocationParameterInput{
		{InvocationName: "temperature", ValueFloat: f64(0.5)},
		{InvocationName: "stop", ValueStringList: []string{"END"}},
		{InvocationName: "empty"},
	})
	assert.Equal(t, map[string]any{"temperature": 0.5, "stop": []string{"END"}}, m)
}

func TestValidate(t *testing.T) {
	defs := anthropicDefs()
	assert.Error(t, Validate(nil, defs), "max_tokens is required")

	ok := MergeWithDefaults(nil, defs)
	require.NoError(t, Validate(ok, defs))

	tooHot := Upsert(ok, model.InvocationParameterInput{InvocationName: "temperature", ValueFloat: f64(1.5)})
	assert.Error(t, Validate(tooHot, defs))
}
