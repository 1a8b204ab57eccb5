package provider

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
)

func TestSpecsCoverEveryProvider(t *testing.T) {
	for _, p := range model.ModelProviders {
		s, err := Lookup(p)
		require.NoError(t, err, "provider %s has no spec", p)
		assert.Equal(t, p, s.Provider)
		assert.NotEmpty(t, s.DisplayName)
		assert.NotZero(t, s.family)
	}
	assert.Len(t, All(), len(model.ModelProviders))
}

func TestCustomProviderSDKsMapBack(t *testing.T) {
	for _, sdk := range model.SDKs {
		s, err := Lookup(sdk.ModelProvider())
		require.NoError(t, err)
		assert.Equal(t, sdk, s.CustomProviderSDK)
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("MISTRAL")
	assert.True(t, errors.Is(err, ErrUnsupportedProvider))

	_, err = DefaultToolDefinition("", 1)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestDefaultToolDefinitionValidatesAgainstOwnSchema(t *testing.T) {
	for _, p := range model.ModelProviders {
		t.Run(string(p), func(t *testing.T) {
			def, err := DefaultToolDefinition(p, 3)
			require.NoError(t, err)

			name, ok := ToolName(p, def)
			require.True(t, ok)
			assert.Equal(t, "new_function_3", name)

			raw := jsonutil.SafelyStringifyJSON(def, false)
			require.NoError(t, raw.Err)
			errs, err := ValidateToolDefinition(p, raw.JSON)
			require.NoError(t, err)
			assert.Empty(t, errs)
		})
	}
}

func TestToolSchemas(t *testing.T) {
	schema, ok, err := ToolCallSchema(model.ProviderOpenAI)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])

	schema, ok, err = ToolDefinitionSchema(model.ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, schema)

	_, _, err = ToolCallSchema("NOPE")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestUnsetProviderIsFreeForm(t *testing.T) {
	for _, lookup := range []func(model.ModelProvider) (map[string]any, bool, error){ToolDefinitionSchema, ToolCallSchema} {
		schema, ok, err := lookup("")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, schema)
	}

	errs, err := ValidateToolDefinition("", `{"name": "anything"}`)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateToolCall("", `{oops`)
	require.NoError(t, err)
	assert.Len(t, errs, 1)
}

func TestValidateToolDefinition(t *testing.T) {
	tests := []struct {
		name      string
		provider  model.ModelProvider
		raw       string
		wantField string
	}{
		{"openai missing function name", model.ProviderOpenAI, `{"type":"function","function":{}}`, "/function"},
		{"openai wrong type", model.ProviderOpenAI, `{"type":"tool","function":{"name":"x"}}`, "/type"},
		{"anthropic missing input_schema", model.ProviderAnthropic, `{"name":"x"}`, "/"},
		{"aws missing json", model.ProviderAWS, `{"toolSpec":{"name":"x","inputSchema":{}}}`, "/toolSpec/inputSchema"},
		{"malformed json", model.ProviderOpenAI, `{"type":`, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := ValidateToolDefinition(tt.provider, tt.raw)
			require.NoError(t, err)
			require.NotEmpty(t, errs)
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
				assert.NotEmpty(t, e.Message)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

// Providers without a schema accept any syntactically valid JSON and still
// reject malformed input.
func TestValidateWithoutSchemaIsFreeForm(t *testing.T) {
	errs, err := ValidateToolDefinition(model.ProviderGoogle, `{"anything": [1, 2, 3]}`)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateToolCall(model.ProviderGoogle, `"just a string"`)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateToolCall(model.ProviderGoogle, `{oops`)
	require.NoError(t, err)
	assert.Len(t, errs, 1)
}

func TestValidateToolCall(t *testing.T) {
	errs, err := ValidateToolCall(model.ProviderOpenAI,
		`{"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{}"}}`)
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = ValidateToolCall(model.ProviderAnthropic, `{"id":"t1","name":"lookup"}`)
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
}

func TestSameToolFamily(t *testing.T) {
	assert.True(t, SameToolFamily(model.ProviderOpenAI, model.ProviderAzureOpenAI))
	assert.True(t, SameToolFamily(model.ProviderOpenAI, model.ProviderDeepSeek))
	assert.False(t, SameToolFamily(model.ProviderOpenAI, model.ProviderAnthropic))
	assert.False(t, SameToolFamily(model.ProviderOpenAI, "UNKNOWN"))
}

func TestEncodeDecodeToolChoice(t *testing.T) {
	choices := []model.ToolChoice{
		{Type: model.ToolChoiceAuto},
		{Type: model.ToolChoiceRequired},
		{Type: model.ToolChoiceSpecific, FunctionName: "lookup"},
	}
	for _, p := range model.ModelProviders {
		for _, c := range choices {
			enc, err := EncodeToolChoice(p, c)
			require.NoError(t, err)
			assert.Equal(t, c, DecodeToolChoice(enc), "provider %s choice %s", p, c.Type)
		}
	}

	enc, err := EncodeToolChoice(model.ProviderAnthropic, model.ToolChoice{Type: model.ToolChoiceRequired})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "any"}, enc)

	enc, err = EncodeToolChoice(model.ProviderAWS, model.ToolChoice{Type: model.ToolChoiceNone})
	require.NoError(t, err)
	assert.Nil(t, enc)

	_, err = EncodeToolChoice(model.ProviderOpenAI, model.ToolChoice{Type: model.ToolChoiceSpecific})
	assert.Error(t, err)
}

func TestFormValuesRoundTrip(t *testing.T) {
	desc := "team key"
	tests := []struct {
		name   string
		config model.ClientConfig
		sdk    model.SDK
	}{
		{
			name: "openai",
			sdk:  model.SDKOpenAI,
			config: model.ClientConfig{OpenAI: &model.OpenAIClientConfig{
				AuthenticationMethod: model.OpenAIAuthenticationMethod{APIKey: model.StrPtr("sk-1")},
				ClientKwargs: model.OpenAIClientKwargs{
					BaseURL:        model.StrPtr("https://proxy.example.com/v1"),
					Organization:   model.StrPtr("org-1"),
					DefaultHeaders: map[string]string{"X-Team": "a", "X-Env": "prod"},
				},
			}},
		},
		{
			name: "azure token provider",
			sdk:  model.SDKAzureOpenAI,
			config: model.ClientConfig{AzureOpenAI: &model.AzureOpenAIClientConfig{
				AuthenticationMethod: model.AzureOpenAIAuthenticationMethod{
					AzureADTokenProvider: &model.AzureADTokenProvider{
						AzureTenantID: "t", AzureClientID: "c", AzureClientSecret: "s",
					},
				},
				ClientKwargs: model.AzureOpenAIClientKwargs{
					AzureEndpoint: "https://x.openai.azure.com",
					APIVersion:    model.StrPtr("2024-06-01"),
				},
			}},
		},
		{
			name: "azure default credentials",
			sdk:  model.SDKAzureOpenAI,
			config: model.ClientConfig{AzureOpenAI: &model.AzureOpenAIClientConfig{
				AuthenticationMethod: model.AzureOpenAIAuthenticationMethod{DefaultCredentials: boolPtr(true)},
				ClientKwargs:         model.AzureOpenAIClientKwargs{AzureEndpoint: "https://x.openai.azure.com"},
			}},
		},
		{
			name: "anthropic",
			sdk:  model.SDKAnthropic,
			config: model.ClientConfig{Anthropic: &model.AnthropicClientConfig{
				AuthenticationMethod: model.AnthropicAuthenticationMethod{APIKey: model.StrPtr("ak")},
			}},
		},
		{
			name: "aws access keys",
			sdk:  model.SDKAWSBedrock,
			config: model.ClientConfig{AWSBedrock: &model.AWSBedrockClientConfig{
				AuthenticationMethod: model.AWSBedrockAuthenticationMethod{AccessKeys: &model.AWSAccessKeys{
					AWSAccessKeyID: "AKIA", AWSSecretAccessKey: "secret", AWSSessionToken: model.StrPtr("tok"),
				}},
				ClientKwargs: model.AWSBedrockClientKwargs{RegionName: "us-east-1"},
			}},
		},
		{
			name: "aws default credentials",
			sdk:  model.SDKAWSBedrock,
			config: model.ClientConfig{AWSBedrock: &model.AWSBedrockClientConfig{
				AuthenticationMethod: model.AWSBedrockAuthenticationMethod{DefaultCredentials: boolPtr(true)},
				ClientKwargs: model.AWSBedrockClientKwargs{
					RegionName: "eu-west-1", EndpointURL: model.StrPtr("https://bedrock.example.com"),
				},
			}},
		},
		{
			name: "google with http options",
			sdk:  model.SDKGoogleGenAI,
			config: model.ClientConfig{GoogleGenAI: &model.GoogleGenAIClientConfig{
				AuthenticationMethod: model.GoogleGenAIAuthenticationMethod{APIKey: model.StrPtr("g")},
				ClientKwargs: model.GoogleGenAIClientKwargs{HTTPOptions: &model.GoogleGenAIHTTPOptions{
					Headers: map[string]string{"X-Goog-User-Project": "p"},
				}},
			}},
		},
		{
			name: "google bare",
			sdk:  model.SDKGoogleGenAI,
			config: model.ClientConfig{GoogleGenAI: &model.GoogleGenAIClientConfig{
				AuthenticationMethod: model.GoogleGenAIAuthenticationMethod{APIKey: model.StrPtr("g")},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := model.CustomProvider{
				ID: uuid.New(), Name: "my-provider", Description: &desc, SDK: tt.sdk, Config: tt.config,
			}
			fv := ConfigToFormValues(node)
			assert.Empty(t, ValidateFormValues(fv))

			in := FormValuesToCreateInput(fv)
			require.NoError(t, in.Validate())
			assert.Equal(t, node.Name, in.Name)
			assert.Equal(t, node.Description, in.Description)
			assert.Equal(t, tt.sdk, in.SDK)
			assert.Equal(t, tt.config, in.Config)
		})
	}
}

func TestFormValuesEmptyOptionalsBecomeAbsent(t *testing.T) {
	in := FormValuesToCreateInput(FormValues{
		Name:    "p",
		SDK:     model.SDKOpenAI,
		APIKey:  "k",
		BaseURL: "   ",
		Headers: []Header{{Key: "", Value: ""}},
	})
	require.NotNil(t, in.Config.OpenAI)
	assert.Nil(t, in.Description)
	assert.Nil(t, in.Config.OpenAI.ClientKwargs.BaseURL)
	assert.Nil(t, in.Config.OpenAI.ClientKwargs.DefaultHeaders)
}

func TestValidateFormValues(t *testing.T) {
	errs := ValidateFormValues(FormValues{
		Name:          "bad name!",
		SDK:           model.SDKAzureOpenAI,
		AuthMethod:    AuthADTokenProvider,
		AzureEndpoint: "not a url",
		AzureTenantID: "t",
		Headers:       []Header{{Key: "X-A", Value: "1"}, {Key: "x-a", Value: "2"}},
	})
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["azure_endpoint"])
	assert.True(t, fields["azure_client_id"])
	assert.True(t, fields["azure_client_secret"])
	assert.True(t, fields["headers[1].key"])
	assert.False(t, fields["azure_tenant_id"])

	errs = ValidateFormValues(FormValues{Name: "ok", SDK: "NOPE"})
	require.Len(t, errs, 1)
	assert.Equal(t, "sdk", errs[0].Field)
}

func boolPtr(b bool) *bool { return &b }
