package provider

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ashita-ai/kaiwa/internal/model"
)

// Authentication method selectors used by FormValues.
const (
	AuthAPIKey             = "api_key"
	AuthADTokenProvider    = "ad_token_provider"
	AuthAccessKeys         = "access_keys"
	AuthDefaultCredentials = "default_credentials"
)

// Header is one editable key/value row of a header map.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// FormValues is the flat, editable projection of a custom provider. Only
// the fields belonging to SDK are meaningful. Empty strings mean "unset".
type FormValues struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	SDK         model.SDK `json:"sdk"`

	// Selects the authentication union member for SDKs that have more than
	// one. Ignored for SDKs that only accept an API key.
	AuthMethod string `json:"auth_method"`

	APIKey  string   `json:"api_key"`
	BaseURL string   `json:"base_url"`
	Headers []Header `json:"headers"`

	OpenAIOrganization string `json:"openai_organization"`
	OpenAIProject      string `json:"openai_project"`

	AzureEndpoint     string `json:"azure_endpoint"`
	AzureAPIVersion   string `json:"azure_api_version"`
	AzureTenantID     string `json:"azure_tenant_id"`
	AzureClientID     string `json:"azure_client_id"`
	AzureClientSecret string `json:"azure_client_secret"`
	AzureScope        string `json:"azure_scope"`

	AWSAccessKeyID     string `json:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"aws_secret_access_key"`
	AWSSessionToken    string `json:"aws_session_token"`
	AWSRegion          string `json:"aws_region"`
	AWSEndpointURL     string `json:"aws_endpoint_url"`
}

// ConfigToFormValues flattens a stored custom provider for editing.
func ConfigToFormValues(p model.CustomProvider) FormValues {
	fv := FormValues{
		Name:        p.Name,
		Description: deref(p.Description),
		SDK:         p.SDK,
	}
	c := p.Config
	switch {
	case c.OpenAI != nil:
		fv.AuthMethod = AuthAPIKey
		fv.APIKey = deref(c.OpenAI.AuthenticationMethod.APIKey)
		fv.BaseURL = deref(c.OpenAI.ClientKwargs.BaseURL)
		fv.OpenAIOrganization = deref(c.OpenAI.ClientKwargs.Organization)
		fv.OpenAIProject = deref(c.OpenAI.ClientKwargs.Project)
		fv.Headers = headersToRows(c.OpenAI.ClientKwargs.DefaultHeaders)
	case c.AzureOpenAI != nil:
		auth := c.AzureOpenAI.AuthenticationMethod
		switch {
		case auth.AzureADTokenProvider != nil:
			fv.AuthMethod = AuthADTokenProvider
			fv.AzureTenantID = auth.AzureADTokenProvider.AzureTenantID
			fv.AzureClientID = auth.AzureADTokenProvider.AzureClientID
			fv.AzureClientSecret = auth.AzureADTokenProvider.AzureClientSecret
			fv.AzureScope = deref(auth.AzureADTokenProvider.Scope)
		case auth.DefaultCredentials != nil && *auth.DefaultCredentials:
			fv.AuthMethod = AuthDefaultCredentials
		default:
			fv.AuthMethod = AuthAPIKey
			fv.APIKey = deref(auth.APIKey)
		}
		fv.AzureEndpoint = c.AzureOpenAI.ClientKwargs.AzureEndpoint
		fv.AzureAPIVersion = deref(c.AzureOpenAI.ClientKwargs.APIVersion)
		fv.Headers = headersToRows(c.AzureOpenAI.ClientKwargs.DefaultHeaders)
	case c.Anthropic != nil:
		fv.AuthMethod = AuthAPIKey
		fv.APIKey = deref(c.Anthropic.AuthenticationMethod.APIKey)
		fv.BaseURL = deref(c.Anthropic.ClientKwargs.BaseURL)
		fv.Headers = headersToRows(c.Anthropic.ClientKwargs.DefaultHeaders)
	case c.AWSBedrock != nil:
		auth := c.AWSBedrock.AuthenticationMethod
		if auth.AccessKeys != nil {
			fv.AuthMethod = AuthAccessKeys
			fv.AWSAccessKeyID = auth.AccessKeys.AWSAccessKeyID
			fv.AWSSecretAccessKey = auth.AccessKeys.AWSSecretAccessKey
			fv.AWSSessionToken = deref(auth.AccessKeys.AWSSessionToken)
		} else {
			fv.AuthMethod = AuthDefaultCredentials
		}
		fv.AWSRegion = c.AWSBedrock.ClientKwargs.RegionName
		fv.AWSEndpointURL = deref(c.AWSBedrock.ClientKwargs.EndpointURL)
	case c.GoogleGenAI != nil:
		fv.AuthMethod = AuthAPIKey
		fv.APIKey = deref(c.GoogleGenAI.AuthenticationMethod.APIKey)
		if opts := c.GoogleGenAI.ClientKwargs.HTTPOptions; opts != nil {
			fv.BaseURL = deref(opts.BaseURL)
			fv.Headers = headersToRows(opts.Headers)
		}
	}
	return fv
}

// FormValuesToCreateInput rebuilds the nested client config from form
// values. Empty optional strings and empty header lists are omitted.
func FormValuesToCreateInput(fv FormValues) model.CustomProviderInput {
	in := model.CustomProviderInput{
		Name:        strings.TrimSpace(fv.Name),
		Description: optional(fv.Description),
		SDK:         fv.SDK,
	}
	headers := rowsToHeaders(fv.Headers)
	switch fv.SDK {
	case model.SDKOpenAI:
		in.Config.OpenAI = &model.OpenAIClientConfig{
			AuthenticationMethod: model.OpenAIAuthenticationMethod{APIKey: optional(fv.APIKey)},
			ClientKwargs: model.OpenAIClientKwargs{
				BaseURL:        optional(fv.BaseURL),
				Organization:   optional(fv.OpenAIOrganization),
				Project:        optional(fv.OpenAIProject),
				DefaultHeaders: headers,
			},
		}
	case model.SDKAzureOpenAI:
		cfg := &model.AzureOpenAIClientConfig{
			ClientKwargs: model.AzureOpenAIClientKwargs{
				AzureEndpoint:  strings.TrimSpace(fv.AzureEndpoint),
				APIVersion:     optional(fv.AzureAPIVersion),
				DefaultHeaders: headers,
			},
		}
		switch fv.AuthMethod {
		case AuthADTokenProvider:
			cfg.AuthenticationMethod.AzureADTokenProvider = &model.AzureADTokenProvider{
				AzureTenantID:     strings.TrimSpace(fv.AzureTenantID),
				AzureClientID:     strings.TrimSpace(fv.AzureClientID),
				AzureClientSecret: fv.AzureClientSecret,
				Scope:             optional(fv.AzureScope),
			}
		case AuthDefaultCredentials:
			t := true
			cfg.AuthenticationMethod.DefaultCredentials = &t
		default:
			cfg.AuthenticationMethod.APIKey = optional(fv.APIKey)
		}
		in.Config.AzureOpenAI = cfg
	case model.SDKAnthropic:
		in.Config.Anthropic = &model.AnthropicClientConfig{
			AuthenticationMethod: model.AnthropicAuthenticationMethod{APIKey: optional(fv.APIKey)},
			ClientKwargs: model.AnthropicClientKwargs{
				BaseURL:        optional(fv.BaseURL),
				DefaultHeaders: headers,
			},
		}
	case model.SDKAWSBedrock:
		cfg := &model.AWSBedrockClientConfig{
			ClientKwargs: model.AWSBedrockClientKwargs{
				RegionName:  strings.TrimSpace(fv.AWSRegion),
				EndpointURL: optional(fv.AWSEndpointURL),
			},
		}
		if fv.AuthMethod == AuthAccessKeys {
			cfg.AuthenticationMethod.AccessKeys = &model.AWSAccessKeys{
				AWSAccessKeyID:     strings.TrimSpace(fv.AWSAccessKeyID),
				AWSSecretAccessKey: fv.AWSSecretAccessKey,
				AWSSessionToken:    optional(fv.AWSSessionToken),
			}
		} else {
			t := true
			cfg.AuthenticationMethod.DefaultCredentials = &t
		}
		in.Config.AWSBedrock = cfg
	case model.SDKGoogleGenAI:
		cfg := &model.GoogleGenAIClientConfig{
			AuthenticationMethod: model.GoogleGenAIAuthenticationMethod{APIKey: optional(fv.APIKey)},
		}
		if base := optional(fv.BaseURL); base != nil || headers != nil {
			cfg.ClientKwargs.HTTPOptions = &model.GoogleGenAIHTTPOptions{BaseURL: base, Headers: headers}
		}
		in.Config.GoogleGenAI = cfg
	}
	return in
}

// ValidateFormValues reports problems per field. A problem in one field
// never hides problems in another.
func ValidateFormValues(fv FormValues) []FieldError {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	if err := model.ValidateName("name", strings.TrimSpace(fv.Name)); err != nil {
		add("name", "%s", err.Error())
	}
	if !fv.SDK.Valid() {
		add("sdk", "sdk %q is not supported", fv.SDK)
		return errs
	}

	checkURL := func(field, raw string, required bool) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			if required {
				add(field, "is required")
			}
			return
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(field, "must be an absolute http(s) URL")
		}
	}
	requireText := func(field, v string) {
		if strings.TrimSpace(v) == "" {
			add(field, "is required")
		}
	}

	switch fv.SDK {
	case model.SDKOpenAI, model.SDKAnthropic, model.SDKGoogleGenAI:
		checkURL("base_url", fv.BaseURL, false)
	case model.SDKAzureOpenAI:
		checkURL("azure_endpoint", fv.AzureEndpoint, true)
		switch fv.AuthMethod {
		case AuthAPIKey, "":
		case AuthADTokenProvider:
			requireText("azure_tenant_id", fv.AzureTenantID)
			requireText("azure_client_id", fv.AzureClientID)
			requireText("azure_client_secret", fv.AzureClientSecret)
		case AuthDefaultCredentials:
		default:
			add("auth_method", "unknown authentication method %q", fv.AuthMethod)
		}
	case model.SDKAWSBedrock:
		requireText("aws_region", fv.AWSRegion)
		checkURL("aws_endpoint_url", fv.AWSEndpointURL, false)
		switch fv.AuthMethod {
		case AuthAccessKeys:
			requireText("aws_access_key_id", fv.AWSAccessKeyID)
			requireText("aws_secret_access_key", fv.AWSSecretAccessKey)
		case AuthDefaultCredentials, "":
		default:
			add("auth_method", "unknown authentication method %q", fv.AuthMethod)
		}
	}

	seen := make(map[string]int, len(fv.Headers))
	for i, h := range fv.Headers {
		key := strings.TrimSpace(h.Key)
		if key == "" {
			if h.Value != "" {
				add(fmt.Sprintf("headers[%d].key", i), "is required when a value is set")
			}
			continue
		}
		if first, dup := seen[strings.ToLower(key)]; dup {
			add(fmt.Sprintf("headers[%d].key", i), "duplicates headers[%d]", first)
			continue
		}
		seen[strings.ToLower(key)] = i
	}
	return errs
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func headersToRows(h map[string]string) []Header {
	if len(h) == 0 {
		return nil
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]Header, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, Header{Key: k, Value: h[k]})
	}
	return rows
}

func rowsToHeaders(rows []Header) map[string]string {
	var out map[string]string
	for _, r := range rows {
		k := strings.TrimSpace(r.Key)
		if k == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(rows))
		}
		out[k] = r.Value
	}
	return out
}
