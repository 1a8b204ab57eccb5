// Package provider maps model providers to their tool schemas, tool-choice
// encodings and custom provider client configuration shapes.
//
// Provider behaviour is a closed dispatch table keyed by model.ModelProvider.
// Adding a provider means adding a table row; TestSpecsCoverEveryProvider
// fails when a known provider has no row.
package provider

import (
	"errors"
	"fmt"

	"github.com/ashita-ai/kaiwa/internal/model"
)

// ErrUnsupportedProvider is returned for providers with no table entry.
var ErrUnsupportedProvider = errors.New("provider: unsupported provider")

// toolFamily groups providers that share tool definition and tool call shapes.
type toolFamily int

const (
	familyOpenAI toolFamily = iota + 1
	familyAnthropic
	familyAWS
	familyGoogle
)

// Spec describes how the playground treats one provider.
type Spec struct {
	Provider         model.ModelProvider `json:"provider"`
	DisplayName      string              `json:"display_name"`
	DefaultBaseURL   string              `json:"default_base_url,omitempty"`
	RequiresEndpoint bool                `json:"requires_endpoint,omitempty"`
	RequiresRegion   bool                `json:"requires_region,omitempty"`
	SupportsTools    bool                `json:"supports_tool_validation"`
	// CustomProviderSDK is the SDK that custom providers for this provider use.
	CustomProviderSDK model.SDK `json:"custom_provider_sdk,omitempty"`

	family toolFamily
}

var specs = map[model.ModelProvider]Spec{
	model.ProviderOpenAI: {
		Provider: model.ProviderOpenAI, DisplayName: "OpenAI",
		DefaultBaseURL: "https://api.openai.com/v1", SupportsTools: true,
		CustomProviderSDK: model.SDKOpenAI, family: familyOpenAI,
	},
	model.ProviderAzureOpenAI: {
		Provider: model.ProviderAzureOpenAI, DisplayName: "Azure OpenAI",
		RequiresEndpoint: true, SupportsTools: true,
		CustomProviderSDK: model.SDKAzureOpenAI, family: familyOpenAI,
	},
	model.ProviderAnthropic: {
		Provider: model.ProviderAnthropic, DisplayName: "Anthropic",
		DefaultBaseURL: "https://api.anthropic.com", SupportsTools: true,
		CustomProviderSDK: model.SDKAnthropic, family: familyAnthropic,
	},
	model.ProviderAWS: {
		Provider: model.ProviderAWS, DisplayName: "AWS Bedrock",
		RequiresRegion: true, SupportsTools: true,
		CustomProviderSDK: model.SDKAWSBedrock, family: familyAWS,
	},
	model.ProviderGoogle: {
		Provider: model.ProviderGoogle, DisplayName: "Google GenAI",
		DefaultBaseURL:    "https://generativelanguage.googleapis.com",
		CustomProviderSDK: model.SDKGoogleGenAI, family: familyGoogle,
	},
	model.ProviderDeepSeek: {
		Provider: model.ProviderDeepSeek, DisplayName: "DeepSeek",
		DefaultBaseURL: "https://api.deepseek.com", SupportsTools: true,
		family: familyOpenAI,
	},
	model.ProviderXAI: {
		Provider: model.ProviderXAI, DisplayName: "xAI",
		DefaultBaseURL: "https://api.x.ai/v1", SupportsTools: true,
		family: familyOpenAI,
	},
	model.ProviderOllama: {
		Provider: model.ProviderOllama, DisplayName: "Ollama",
		DefaultBaseURL: "http://localhost:11434/v1", SupportsTools: true,
		family: familyOpenAI,
	},
}

// Lookup returns the spec for p.
func Lookup(p model.ModelProvider) (Spec, error) {
	s, ok := specs[p]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, p)
	}
	return s, nil
}

// All returns every spec in display order.
func All() []Spec {
	out := make([]Spec, 0, len(model.ModelProviders))
	for _, p := range model.ModelProviders {
		if s, ok := specs[p]; ok {
			out = append(out, s)
		}
	}
	return out
}

// SameToolFamily reports whether tools and tool calls written for a can be
// used unchanged with b.
func SameToolFamily(a, b model.ModelProvider) bool {
	sa, errA := Lookup(a)
	sb, errB := Lookup(b)
	return errA == nil && errB == nil && sa.family == sb.family
}

// DefaultToolDefinition returns a starter tool definition shaped for p.
// n numbers the tool so successive additions get distinct names.
func DefaultToolDefinition(p model.ModelProvider, n int) (map[string]any, error) {
	s, err := Lookup(p)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("new_function_%d", n)
	params := func() map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"new_arg": map[string]any{"type": "string"},
			},
			"required": []any{},
		}
	}
	switch s.family {
	case familyOpenAI:
		return map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        name,
				"description": "",
				"parameters":  params(),
			},
		}, nil
	case familyAnthropic:
		return map[string]any{
			"name":         name,
			"description":  "",
			"input_schema": params(),
		}, nil
	case familyAWS:
		return map[string]any{
			"toolSpec": map[string]any{
				"name":        name,
				"description": "",
				"inputSchema": map[string]any{"json": params()},
			},
		}, nil
	case familyGoogle:
		return map[string]any{
			"name":        name,
			"description": "",
			"parameters":  params(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, p)
}

// ToolName extracts the function name from a tool definition shaped for p.
func ToolName(p model.ModelProvider, def map[string]any) (string, bool) {
	s, err := Lookup(p)
	if err != nil {
		return "", false
	}
	var holder map[string]any
	switch s.family {
	case familyOpenAI:
		holder, _ = def["function"].(map[string]any)
	case familyAWS:
		holder, _ = def["toolSpec"].(map[string]any)
	default:
		holder = def
	}
	name, ok := holder["name"].(string)
	return name, ok && name != ""
}

// EncodeToolChoice renders a provider-neutral tool choice in p's wire shape.
// A nil result means the field should be omitted from the request.
func EncodeToolChoice(p model.ModelProvider, choice model.ToolChoice) (any, error) {
	if err := choice.Validate(); err != nil {
		return nil, err
	}
	s, err := Lookup(p)
	if err != nil {
		return nil, err
	}
	switch s.family {
	case familyOpenAI:
		if choice.Type == model.ToolChoiceSpecific {
			return map[string]any{
				"type":     "function",
				"function": map[string]any{"name": choice.FunctionName},
			}, nil
		}
		return string(choice.Type), nil
	case familyAnthropic:
		switch choice.Type {
		case model.ToolChoiceRequired:
			return map[string]any{"type": "any"}, nil
		case model.ToolChoiceSpecific:
			return map[string]any{"type": "tool", "name": choice.FunctionName}, nil
		default:
			return map[string]any{"type": string(choice.Type)}, nil
		}
	case familyAWS:
		switch choice.Type {
		case model.ToolChoiceAuto:
			return map[string]any{"auto": map[string]any{}}, nil
		case model.ToolChoiceRequired:
			return map[string]any{"any": map[string]any{}}, nil
		case model.ToolChoiceSpecific:
			return map[string]any{"tool": map[string]any{"name": choice.FunctionName}}, nil
		default:
			return nil, nil
		}
	case familyGoogle:
		switch choice.Type {
		case model.ToolChoiceNone:
			return map[string]any{"mode": "NONE"}, nil
		case model.ToolChoiceRequired:
			return map[string]any{"mode": "ANY"}, nil
		case model.ToolChoiceSpecific:
			return map[string]any{"mode": "ANY", "allowed_function_names": []any{choice.FunctionName}}, nil
		default:
			return map[string]any{"mode": "AUTO"}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, p)
}

// DecodeToolChoice parses a provider-shaped tool choice, accepting any of
// the shapes EncodeToolChoice produces. Unrecognised values decode as auto.
func DecodeToolChoice(v any) model.ToolChoice {
	switch t := v.(type) {
	case string:
		switch t {
		case "none":
			return model.ToolChoice{Type: model.ToolChoiceNone}
		case "required", "any":
			return model.ToolChoice{Type: model.ToolChoiceRequired}
		}
	case map[string]any:
		if fn, ok := t["function"].(map[string]any); ok {
			if name, ok := fn["name"].(string); ok && name != "" {
				return model.ToolChoice{Type: model.ToolChoiceSpecific, FunctionName: name}
			}
		}
		if tool, ok := t["tool"].(map[string]any); ok {
			if name, ok := tool["name"].(string); ok && name != "" {
				return model.ToolChoice{Type: model.ToolChoiceSpecific, FunctionName: name}
			}
		}
		if _, ok := t["any"]; ok {
			return model.ToolChoice{Type: model.ToolChoiceRequired}
		}
		if names, ok := t["allowed_function_names"].([]any); ok && len(names) == 1 {
			if name, ok := names[0].(string); ok {
				return model.ToolChoice{Type: model.ToolChoiceSpecific, FunctionName: name}
			}
		}
		kind, _ := t["type"].(string)
		if kind == "" {
			kind, _ = t["mode"].(string)
		}
		switch kind {
		case "tool":
			if name, ok := t["name"].(string); ok && name != "" {
				return model.ToolChoice{Type: model.ToolChoiceSpecific, FunctionName: name}
			}
		case "any", "ANY", "required":
			return model.ToolChoice{Type: model.ToolChoiceRequired}
		case "none", "NONE":
			return model.ToolChoice{Type: model.ToolChoiceNone}
		}
	}
	return model.ToolChoice{Type: model.ToolChoiceAuto}
}
