package playground

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/model"
)

func TestDenormalizeIsPure(t *testing.T) {
	s := NewStore(Seed{}, nil)
	st := s.Snapshot()
	inst := st.Instances[0]

	a, err := Denormalize(inst, st.Messages)
	require.NoError(t, err)
	b, err := Denormalize(inst, st.Messages)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a.Messages, 2)
	assert.Equal(t, model.RoleSystem, a.Messages[0].Role)

	inst.Template = append(inst.Template, 404)
	_, err = Denormalize(inst, st.Messages)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestDeriveVariables(t *testing.T) {
	instances := []DenormalizedInstance{
		{Messages: []model.Message{
			{Role: model.RoleSystem, Content: model.StrPtr("You help with {{topic}}.")},
			{Role: model.RoleUser, Content: model.StrPtr("{{question}} about {{topic}}")},
		}},
		{Messages: []model.Message{
			{Role: model.RoleUser, Content: model.StrPtr("{{ extra }}")},
			{Role: model.RoleAI},
		}},
	}
	input := Input{VariablesValueCache: map[string]string{"topic": "go", "stale": "x"}}

	vs := DeriveVariables(instances, model.TemplateFormatMustache, input)
	assert.Equal(t, []string{"topic", "question", "extra"}, vs.Keys)
	assert.Equal(t, map[string]string{"topic": "go", "question": "", "extra": ""}, vs.Values)

	again := DeriveVariables(instances, model.TemplateFormatMustache, input)
	assert.Equal(t, vs, again, "recomputation is deterministic")

	none := DeriveVariables(instances, model.TemplateFormatNone, input)
	assert.Empty(t, none.Keys)
	assert.Empty(t, none.Values)
}

func TestRenderInstance(t *testing.T) {
	inst := DenormalizedInstance{Messages: []model.Message{
		{Role: model.RoleUser, Content: model.StrPtr("Hello {{name}}, {{unknown}}")},
		{Role: model.RoleAI},
	}}
	out := RenderInstance(inst, model.TemplateFormatMustache, map[string]string{"name": "Ada"})
	assert.Equal(t, "Hello Ada, {{unknown}}", out.Messages[0].Text())
	assert.Nil(t, out.Messages[1].Content)
	assert.Equal(t, "Hello {{name}}, {{unknown}}", inst.Messages[0].Text(), "input untouched")
}

func TestPromptVersionRoundTrip(t *testing.T) {
	name := "gpt-4o"
	temp := 0.7
	inst := DenormalizedInstance{
		Model: model.ModelConfig{
			Provider:  model.ProviderOpenAI,
			ModelName: &name,
			InvocationParameters: []model.InvocationParameterInput{
				{InvocationName: "temperature", ValueFloat: &temp},
			},
		},
		Tools: []model.Tool{{ID: 1, EditorType: model.ToolEditorJSON, Definition: map[string]any{
			"type": "function", "function": map[string]any{"name": "lookup"},
		}}},
		ToolChoice: &model.ToolChoice{Type: model.ToolChoiceSpecific, FunctionName: "lookup"},
		Messages: []model.Message{
			{ID: 1, Role: model.RoleSystem, Content: model.StrPtr("Be brief.")},
			{ID: 2, Role: model.RoleUser, Content: model.StrPtr("{{q}}")},
		},
	}

	pv, err := ToPromptVersionInput(inst, model.TemplateFormatMustache, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", pv.ModelName)
	require.Len(t, pv.Messages, 2)
	require.Len(t, pv.Tools, 1)

	pv.ID = uuid.New()
	ref := model.PromptRef{ID: uuid.New(), Name: "brief"}
	draft, err := InstanceFromPromptVersion(pv, ref)
	require.NoError(t, err)
	assert.Equal(t, model.TemplateFormatMustache, *draft.TemplateFormat)
	require.NotNil(t, draft.Instance.Prompt)
	assert.Equal(t, pv.ID, *draft.Instance.Prompt.VersionID)
	assert.Equal(t, inst.Model.InvocationParameters, draft.Instance.Model.InvocationParameters)
	assert.Equal(t, inst.Tools, draft.Instance.Tools)
	assert.Equal(t, inst.ToolChoice, draft.Instance.ToolChoice)
	require.Len(t, draft.Messages, 2)
	assert.Equal(t, "{{q}}", draft.Messages[1].Text())

	s := NewStore(Seed{}, nil)
	id, err := s.AddDraft(draft, nil)
	require.NoError(t, err)
	loaded, err := s.Instance(id)
	require.NoError(t, err)
	assert.False(t, loaded.Dirty)
	assert.Contains(t, s.Snapshot().Variables.Keys, "q")
}

func TestToPromptVersionRequiresModel(t *testing.T) {
	_, err := ToPromptVersionInput(DenormalizedInstance{
		Model:    model.ModelConfig{Provider: model.ProviderOpenAI},
		Messages: []model.Message{{Role: model.RoleUser}},
	}, model.TemplateFormatNone, nil)
	assert.ErrorIs(t, err, ErrNoModelSelected)
}

func TestInstanceFromSpanAttributes_Flat(t *testing.T) {
	attrs := map[string]any{
		"llm.provider":                                      "anthropic",
		"llm.model_name":                                    "claude-3-5-sonnet",
		"llm.invocation_parameters":                         `{"max_tokens": 256, "temperature": 0.1, "stop": ["END"], "tool_choice": {"type": "any"}}`,
		"llm.input_messages.0.message.role":                 "system",
		"llm.input_messages.0.message.content":              "You are terse.",
		"llm.input_messages.1.message.role":                 "user",
		"llm.input_messages.1.message.content":              "Weather?",
		"llm.output_messages.0.message.role":                "assistant",
		"llm.output_messages.0.message.tool_calls.0.tool_call.id":                 "t1",
		"llm.output_messages.0.message.tool_calls.0.tool_call.function.name":      "weather",
		"llm.output_messages.0.message.tool_calls.0.tool_call.function.arguments": `{"city":"Paris"}`,
		"llm.tools.0.tool.json_schema": `{"name":"weather","input_schema":{"type":"object"}}`,
		"openinference.span.kind":      "LLM",
	}

	draft, warnings, err := InstanceFromSpanAttributes(attrs)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	cfg := draft.Instance.Model
	assert.Equal(t, model.ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "claude-3-5-sonnet", *cfg.ModelName)

	byName := map[string]model.InvocationParameterInput{}
	for _, p := range cfg.InvocationParameters {
		byName[p.InvocationName] = p
	}
	require.Len(t, byName, 3)
	assert.Equal(t, int64(256), *byName["max_tokens"].ValueInt)
	assert.Equal(t, 0.1, *byName["temperature"].ValueFloat)
	assert.Equal(t, []string{"END"}, byName["stop"].ValueStringList)

	require.NotNil(t, draft.Instance.ToolChoice)
	assert.Equal(t, model.ToolChoiceRequired, draft.Instance.ToolChoice.Type)
	require.Len(t, draft.Instance.Tools, 1)

	require.Len(t, draft.Messages, 3)
	assert.Equal(t, model.RoleAI, draft.Messages[2].Role)
	require.Len(t, draft.Messages[2].ToolCalls, 1)
	fn := draft.Messages[2].ToolCalls[0]["function"].(map[string]any)
	assert.Equal(t, "weather", fn["name"])
}

func TestInstanceFromSpanAttributes_NestedAndWarnings(t *testing.T) {
	attrs := map[string]any{
		"llm": map[string]any{
			"system":     "somevendor",
			"model_name": "m",
			"input_messages": []any{
				map[string]any{"message": map[string]any{"role": "user", "content": "hi"}},
				map[string]any{"message": map[string]any{"role": "narrator", "content": "?"}},
			},
		},
	}
	draft, warnings, err := InstanceFromSpanAttributes(attrs)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderOpenAI, draft.Instance.Model.Provider)
	assert.Len(t, draft.Messages, 1)
	assert.Len(t, warnings, 2)

	_, _, err = InstanceFromSpanAttributes(map[string]any{"http.method": "GET"})
	assert.ErrorIs(t, err, ErrNotLLMSpan)
}

func TestDiffInstances(t *testing.T) {
	name := "gpt-4o"
	other := "gpt-4o-mini"
	t1, t2 := 0.1, 0.9
	a := DenormalizedInstance{
		ID:    1,
		Model: model.ModelConfig{Provider: model.ProviderOpenAI, ModelName: &name, InvocationParameters: []model.InvocationParameterInput{{InvocationName: "temperature", ValueFloat: &t1}}},
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: model.StrPtr("You are a helpful bot")},
			{Role: model.RoleUser, Content: model.StrPtr("same")},
		},
	}
	b := DenormalizedInstance{
		ID:    2,
		Model: model.ModelConfig{Provider: model.ProviderOpenAI, ModelName: &other, InvocationParameters: []model.InvocationParameterInput{{InvocationName: "temperature", ValueFloat: &t2}}},
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: model.StrPtr("You are a terse bot")},
			{Role: model.RoleUser, Content: model.StrPtr("same")},
			{Role: model.RoleAI, Content: model.StrPtr("extra")},
		},
	}

	d := DiffInstances(a, b)
	assert.False(t, d.Equal())
	assert.True(t, d.ModelChanged)
	require.Len(t, d.Messages, 3)
	assert.True(t, d.Messages[0].Changed)
	assert.False(t, d.Messages[1].Changed)
	assert.True(t, d.Messages[2].Changed)
	assert.Equal(t, []DiffSpan{{Kind: SpanInsert, Text: "extra"}}, d.Messages[2].Spans)
	require.Len(t, d.Parameters, 1)
	assert.Equal(t, "temperature", d.Parameters[0].Name)

	var inserted, deleted string
	for _, sp := range d.Messages[0].Spans {
		switch sp.Kind {
		case SpanInsert:
			inserted += sp.Text
		case SpanDelete:
			deleted += sp.Text
		}
	}
	assert.Contains(t, inserted, "terse")
	assert.Contains(t, deleted, "helpful")

	assert.True(t, DiffInstances(a, a).Equal())
}
