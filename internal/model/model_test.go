package model_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/model"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want model.Role
	}{
		{"system", model.RoleSystem},
		{"developer", model.RoleSystem},
		{"User", model.RoleUser},
		{"human", model.RoleUser},
		{"assistant", model.RoleAI},
		{"model", model.RoleAI},
		{"ai", model.RoleAI},
		{" tool ", model.RoleTool},
	}
	for _, tt := range tests {
		got, err := model.ParseRole(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := model.ParseRole("narrator")
	assert.Error(t, err)
}

func TestInvocationParameterDefinition_DefaultValueScan(t *testing.T) {
	raw := `{
		"__typename": "BoundedFloatInvocationParameter",
		"invocationName": "temperature",
		"canonicalName": "TEMPERATURE",
		"invocationInputField": "value_float",
		"intDefaultValue": null,
		"floatDefaultValue": 0.7,
		"minValue": 0,
		"maxValue": 2
	}`
	var def model.InvocationParameterDefinition
	require.NoError(t, json.Unmarshal([]byte(raw), &def))

	assert.Equal(t, "temperature", def.InvocationName)
	require.NotNil(t, def.CanonicalName)
	assert.Equal(t, model.CanonicalTemperature, *def.CanonicalName)
	assert.Equal(t, model.FieldValueFloat, def.InvocationInputField)
	assert.Equal(t, 0.7, def.DefaultValue)
	require.NotNil(t, def.MaxValue)
	assert.Equal(t, 2.0, *def.MaxValue)
}

func TestInvocationParameterDefinition_NoDefault(t *testing.T) {
	var def model.InvocationParameterDefinition
	require.NoError(t, json.Unmarshal([]byte(`{"invocationName":"seed","canonicalName":null,"invocationInputField":"value_int","intDefaultValue":null}`), &def))
	assert.Nil(t, def.DefaultValue)
	assert.Nil(t, def.CanonicalName)
}

func TestInvocationParameterDefinition_MarshalRoundTrip(t *testing.T) {
	in := model.InvocationParameterDefinition{
		InvocationName:       "stop",
		CanonicalName:        model.CanonicalPtr(model.CanonicalStopSequences),
		InvocationInputField: model.FieldValueStringList,
		DefaultValue:         []any{"\n"},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"defaultValue":["\n"]`)

	var out model.InvocationParameterDefinition
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestClientConfigSDK(t *testing.T) {
	_, err := model.ClientConfig{}.SDK()
	assert.Error(t, err)

	sdk, err := model.ClientConfig{Anthropic: &model.AnthropicClientConfig{}}.SDK()
	require.NoError(t, err)
	assert.Equal(t, model.SDKAnthropic, sdk)

	_, err = model.ClientConfig{
		OpenAI:    &model.OpenAIClientConfig{},
		Anthropic: &model.AnthropicClientConfig{},
	}.SDK()
	assert.Error(t, err)
}

func TestClientConfigMapSecrets(t *testing.T) {
	cfg := model.ClientConfig{AWSBedrock: &model.AWSBedrockClientConfig{
		AuthenticationMethod: model.AWSBedrockAuthenticationMethod{
			AccessKeys: &model.AWSAccessKeys{
				AWSAccessKeyID:     "AKIA",
				AWSSecretAccessKey: "secret",
				AWSSessionToken:    model.StrPtr("token"),
			},
		},
		ClientKwargs: model.AWSBedrockClientKwargs{RegionName: "us-east-1"},
	}}

	upper, err := cfg.MapSecrets(func(s string) (string, error) { return strings.ToUpper(s), nil })
	require.NoError(t, err)
	keys := upper.AWSBedrock.AuthenticationMethod.AccessKeys
	assert.Equal(t, "AKIA", keys.AWSAccessKeyID)
	assert.Equal(t, "SECRET", keys.AWSSecretAccessKey)
	assert.Equal(t, "TOKEN", *keys.AWSSessionToken)

	// The source config is untouched.
	assert.Equal(t, "secret", cfg.AWSBedrock.AuthenticationMethod.AccessKeys.AWSSecretAccessKey)

	_, err = cfg.MapSecrets(func(string) (string, error) { return "", fmt.Errorf("boom") })
	assert.Error(t, err)
}

func TestClientConfigRedacted(t *testing.T) {
	cfg := model.ClientConfig{AzureOpenAI: &model.AzureOpenAIClientConfig{
		AuthenticationMethod: model.AzureOpenAIAuthenticationMethod{
			AzureADTokenProvider: &model.AzureADTokenProvider{
				AzureTenantID:     "tenant",
				AzureClientID:     "client",
				AzureClientSecret: "s3cret",
			},
		},
		ClientKwargs: model.AzureOpenAIClientKwargs{AzureEndpoint: "https://x.openai.azure.com"},
	}}
	red := cfg.Redacted()
	tp := red.AzureOpenAI.AuthenticationMethod.AzureADTokenProvider
	assert.Equal(t, model.RedactedSecret, tp.AzureClientSecret)
	assert.Equal(t, "tenant", tp.AzureTenantID)
	assert.Nil(t, red.AzureOpenAI.AuthenticationMethod.APIKey)
}

func TestValidateName(t *testing.T) {
	require.NoError(t, model.ValidateName("name", "my-prompt_v1.2"))
	assert.Error(t, model.ValidateName("name", ""))
	assert.Error(t, model.ValidateName("name", "has space"))
	assert.Error(t, model.ValidateName("name", strings.Repeat("a", 256)))
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, model.RoleAtLeast(model.AccessAdmin, model.AccessEditor))
	assert.True(t, model.RoleAtLeast(model.AccessEditor, model.AccessEditor))
	assert.False(t, model.RoleAtLeast(model.AccessViewer, model.AccessEditor))
	assert.False(t, model.RoleAtLeast(model.AccessRole("unknown"), model.AccessViewer))
}

func TestPromptVersionValidate(t *testing.T) {
	v := model.PromptVersion{
		TemplateFormat: model.TemplateFormatMustache,
		ModelProvider:  model.ProviderOpenAI,
		ModelName:      "gpt-4o",
		Messages:       []model.PromptMessage{{Role: model.RoleUser, Content: model.StrPtr("hi {{name}}")}},
	}
	require.NoError(t, v.Validate())

	bad := v
	bad.Messages = nil
	assert.Error(t, bad.Validate())

	bad = v
	bad.ToolChoice = &model.ToolChoice{Type: model.ToolChoiceSpecific}
	assert.Error(t, bad.Validate())

	bad = v
	bad.ModelProvider = "MYSTERY"
	assert.Error(t, bad.Validate())
}

func TestMessagePatchApply(t *testing.T) {
	m := model.Message{ID: 1, Role: model.RoleUser, Content: model.StrPtr("a")}
	role := model.RoleAI
	out := model.MessagePatch{Role: &role, Content: model.StrPtr("b")}.Apply(m)
	assert.Equal(t, model.RoleAI, out.Role)
	assert.Equal(t, "b", out.Text())
	assert.Equal(t, "a", m.Text())

	cleared := model.MessagePatch{ClearText: true}.Apply(out)
	assert.Nil(t, cleared.Content)
}

func TestInstanceNextToolID(t *testing.T) {
	assert.Equal(t, model.ToolID(1), model.Instance{}.NextToolID())
	inst := model.Instance{Tools: []model.Tool{{ID: 3}, {ID: 1}}}
	assert.Equal(t, model.ToolID(4), inst.NextToolID())
}
