package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CustomProvider is a stored set of credentials and client options for one SDK.
type CustomProvider struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	SDK         SDK          `json:"sdk"`
	Config      ClientConfig `json:"config"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ClientConfig is a tagged union: exactly one member is set.
type ClientConfig struct {
	OpenAI      *OpenAIClientConfig      `json:"openai,omitempty"`
	AzureOpenAI *AzureOpenAIClientConfig `json:"azure_openai,omitempty"`
	Anthropic   *AnthropicClientConfig   `json:"anthropic,omitempty"`
	AWSBedrock  *AWSBedrockClientConfig  `json:"aws_bedrock,omitempty"`
	GoogleGenAI *GoogleGenAIClientConfig `json:"google_genai,omitempty"`
}

// SDK returns the SDK of the set member, or an error unless exactly one is set.
func (c ClientConfig) SDK() (SDK, error) {
	var (
		found SDK
		n     int
	)
	if c.OpenAI != nil {
		found, n = SDKOpenAI, n+1
	}
	if c.AzureOpenAI != nil {
		found, n = SDKAzureOpenAI, n+1
	}
	if c.Anthropic != nil {
		found, n = SDKAnthropic, n+1
	}
	if c.AWSBedrock != nil {
		found, n = SDKAWSBedrock, n+1
	}
	if c.GoogleGenAI != nil {
		found, n = SDKGoogleGenAI, n+1
	}
	if n != 1 {
		return "", fmt.Errorf("client config must set exactly one sdk, got %d", n)
	}
	return found, nil
}

// OpenAIClientConfig configures the OpenAI SDK.
type OpenAIClientConfig struct {
	AuthenticationMethod OpenAIAuthenticationMethod `json:"openai_authentication_method"`
	ClientKwargs         OpenAIClientKwargs         `json:"openai_client_kwargs"`
}

type OpenAIAuthenticationMethod struct {
	APIKey *string `json:"api_key,omitempty"`
}

type OpenAIClientKwargs struct {
	BaseURL        *string           `json:"base_url,omitempty"`
	Organization   *string           `json:"organization,omitempty"`
	Project        *string           `json:"project,omitempty"`
	DefaultHeaders map[string]string `json:"default_headers,omitempty"`
}

// AzureOpenAIClientConfig configures the Azure OpenAI SDK.
type AzureOpenAIClientConfig struct {
	AuthenticationMethod AzureOpenAIAuthenticationMethod `json:"azure_openai_authentication_method"`
	ClientKwargs         AzureOpenAIClientKwargs         `json:"azure_openai_client_kwargs"`
}

// AzureOpenAIAuthenticationMethod is a union of api key, Entra ID token
// provider and ambient default credentials.
type AzureOpenAIAuthenticationMethod struct {
	APIKey               *string               `json:"api_key,omitempty"`
	AzureADTokenProvider *AzureADTokenProvider `json:"azure_ad_token_provider,omitempty"`
	DefaultCredentials   *bool                 `json:"default_credentials,omitempty"`
}

type AzureADTokenProvider struct {
	AzureTenantID     string  `json:"azure_tenant_id"`
	AzureClientID     string  `json:"azure_client_id"`
	AzureClientSecret string  `json:"azure_client_secret"`
	Scope             *string `json:"scope,omitempty"`
}

type AzureOpenAIClientKwargs struct {
	AzureEndpoint  string            `json:"azure_endpoint"`
	APIVersion     *string           `json:"api_version,omitempty"`
	DefaultHeaders map[string]string `json:"default_headers,omitempty"`
}

// AnthropicClientConfig configures the Anthropic SDK.
type AnthropicClientConfig struct {
	AuthenticationMethod AnthropicAuthenticationMethod `json:"anthropic_authentication_method"`
	ClientKwargs         AnthropicClientKwargs         `json:"anthropic_client_kwargs"`
}

type AnthropicAuthenticationMethod struct {
	APIKey *string `json:"api_key,omitempty"`
}

type AnthropicClientKwargs struct {
	BaseURL        *string           `json:"base_url,omitempty"`
	DefaultHeaders map[string]string `json:"default_headers,omitempty"`
}

// AWSBedrockClientConfig configures the Bedrock runtime client.
type AWSBedrockClientConfig struct {
	AuthenticationMethod AWSBedrockAuthenticationMethod `json:"aws_bedrock_authentication_method"`
	ClientKwargs         AWSBedrockClientKwargs         `json:"aws_bedrock_client_kwargs"`
}

// AWSBedrockAuthenticationMethod is a union of static access keys and the
// default credential chain.
type AWSBedrockAuthenticationMethod struct {
	AccessKeys         *AWSAccessKeys `json:"access_keys,omitempty"`
	DefaultCredentials *bool          `json:"default_credentials,omitempty"`
}

type AWSAccessKeys struct {
	AWSAccessKeyID     string  `json:"aws_access_key_id"`
	AWSSecretAccessKey string  `json:"aws_secret_access_key"`
	AWSSessionToken    *string `json:"aws_session_token,omitempty"`
}

type AWSBedrockClientKwargs struct {
	RegionName  string  `json:"region_name"`
	EndpointURL *string `json:"endpoint_url,omitempty"`
}

// GoogleGenAIClientConfig configures the Google GenAI SDK.
type GoogleGenAIClientConfig struct {
	AuthenticationMethod GoogleGenAIAuthenticationMethod `json:"google_genai_authentication_method"`
	ClientKwargs         GoogleGenAIClientKwargs         `json:"google_genai_client_kwargs"`
}

type GoogleGenAIAuthenticationMethod struct {
	APIKey *string `json:"api_key,omitempty"`
}

type GoogleGenAIClientKwargs struct {
	HTTPOptions *GoogleGenAIHTTPOptions `json:"http_options,omitempty"`
}

type GoogleGenAIHTTPOptions struct {
	BaseURL *string           `json:"base_url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MapSecrets rewrites every secret field of the config through fn and
// returns the rewritten copy. Used for sealing at rest and for redaction.
func (c ClientConfig) MapSecrets(fn func(string) (string, error)) (ClientConfig, error) {
	mapPtr := func(p *string) (*string, error) {
		if p == nil {
			return nil, nil
		}
		v, err := fn(*p)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
	var err error
	out := c
	switch {
	case c.OpenAI != nil:
		cfg := *c.OpenAI
		if cfg.AuthenticationMethod.APIKey, err = mapPtr(cfg.AuthenticationMethod.APIKey); err != nil {
			return ClientConfig{}, err
		}
		out.OpenAI = &cfg
	case c.AzureOpenAI != nil:
		cfg := *c.AzureOpenAI
		if cfg.AuthenticationMethod.APIKey, err = mapPtr(cfg.AuthenticationMethod.APIKey); err != nil {
			return ClientConfig{}, err
		}
		if tp := cfg.AuthenticationMethod.AzureADTokenProvider; tp != nil {
			copied := *tp
			if copied.AzureClientSecret, err = fn(tp.AzureClientSecret); err != nil {
				return ClientConfig{}, err
			}
			cfg.AuthenticationMethod.AzureADTokenProvider = &copied
		}
		out.AzureOpenAI = &cfg
	case c.Anthropic != nil:
		cfg := *c.Anthropic
		if cfg.AuthenticationMethod.APIKey, err = mapPtr(cfg.AuthenticationMethod.APIKey); err != nil {
			return ClientConfig{}, err
		}
		out.Anthropic = &cfg
	case c.AWSBedrock != nil:
		cfg := *c.AWSBedrock
		if keys := cfg.AuthenticationMethod.AccessKeys; keys != nil {
			copied := *keys
			if copied.AWSSecretAccessKey, err = fn(keys.AWSSecretAccessKey); err != nil {
				return ClientConfig{}, err
			}
			if copied.AWSSessionToken, err = mapPtr(keys.AWSSessionToken); err != nil {
				return ClientConfig{}, err
			}
			cfg.AuthenticationMethod.AccessKeys = &copied
		}
		out.AWSBedrock = &cfg
	case c.GoogleGenAI != nil:
		cfg := *c.GoogleGenAI
		if cfg.AuthenticationMethod.APIKey, err = mapPtr(cfg.AuthenticationMethod.APIKey); err != nil {
			return ClientConfig{}, err
		}
		out.GoogleGenAI = &cfg
	}
	return out, nil
}

// Redacted returns the config with every secret replaced by a fixed mask.
func (c ClientConfig) Redacted() ClientConfig {
	out, _ := c.MapSecrets(func(string) (string, error) { return RedactedSecret, nil })
	return out
}

// RedactedSecret replaces secrets in API responses.
const RedactedSecret = "********"

// CustomProviderInput is the create/update payload for a custom provider.
type CustomProviderInput struct {
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	SDK         SDK          `json:"sdk"`
	Config      ClientConfig `json:"config"`
}

// Validate checks the name and that the config matches the declared SDK.
func (in CustomProviderInput) Validate() error {
	if err := ValidateName("name", in.Name); err != nil {
		return err
	}
	if !in.SDK.Valid() {
		return fmt.Errorf("sdk %q is not supported", in.SDK)
	}
	sdk, err := in.Config.SDK()
	if err != nil {
		return err
	}
	if sdk != in.SDK {
		return fmt.Errorf("config is for %s but sdk is %s", sdk, in.SDK)
	}
	return nil
}
