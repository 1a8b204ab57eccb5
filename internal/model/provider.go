// Package model defines the core domain types for kaiwa.
//
// Types mirror the playground's wire shapes: providers, instances, messages,
// tools, invocation parameters, prompts and custom provider client configs.
// JSON tags use snake_case except where a shape is owned by the backend
// schema (invocation parameter definitions), which keeps its camelCase keys.
package model

import "fmt"

// ModelProvider identifies the vendor a playground instance runs against.
type ModelProvider string

const (
	ProviderOpenAI      ModelProvider = "OPENAI"
	ProviderAzureOpenAI ModelProvider = "AZURE_OPENAI"
	ProviderAnthropic   ModelProvider = "ANTHROPIC"
	ProviderAWS         ModelProvider = "AWS"
	ProviderGoogle      ModelProvider = "GOOGLE"
	ProviderDeepSeek    ModelProvider = "DEEPSEEK"
	ProviderXAI         ModelProvider = "XAI"
	ProviderOllama      ModelProvider = "OLLAMA"
)

// ModelProviders lists every known provider in display order.
var ModelProviders = []ModelProvider{
	ProviderOpenAI,
	ProviderAzureOpenAI,
	ProviderAnthropic,
	ProviderAWS,
	ProviderGoogle,
	ProviderDeepSeek,
	ProviderXAI,
	ProviderOllama,
}

// Valid reports whether p is a known provider.
func (p ModelProvider) Valid() bool {
	for _, known := range ModelProviders {
		if p == known {
			return true
		}
	}
	return false
}

// ParseModelProvider validates a provider string.
func ParseModelProvider(s string) (ModelProvider, error) {
	p := ModelProvider(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown model provider %q", s)
	}
	return p, nil
}

// SDK identifies the client library a custom provider configures.
type SDK string

const (
	SDKOpenAI      SDK = "OPENAI"
	SDKAzureOpenAI SDK = "AZURE_OPENAI"
	SDKAnthropic   SDK = "ANTHROPIC"
	SDKAWSBedrock  SDK = "AWS_BEDROCK"
	SDKGoogleGenAI SDK = "GOOGLE_GENAI"
)

// SDKs lists every supported custom provider SDK.
var SDKs = []SDK{SDKOpenAI, SDKAzureOpenAI, SDKAnthropic, SDKAWSBedrock, SDKGoogleGenAI}

// Valid reports whether s is a known SDK.
func (s SDK) Valid() bool {
	for _, known := range SDKs {
		if s == known {
			return true
		}
	}
	return false
}

// ModelProvider returns the playground provider a custom provider SDK serves.
func (s SDK) ModelProvider() ModelProvider {
	switch s {
	case SDKOpenAI:
		return ProviderOpenAI
	case SDKAzureOpenAI:
		return ProviderAzureOpenAI
	case SDKAnthropic:
		return ProviderAnthropic
	case SDKAWSBedrock:
		return ProviderAWS
	case SDKGoogleGenAI:
		return ProviderGoogle
	default:
		return ""
	}
}
