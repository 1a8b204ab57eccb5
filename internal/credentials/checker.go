// Package credentials tests custom provider credentials against the
// provider's API and suppresses results that a newer test has superseded.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashita-ai/kaiwa/internal/model"
)

// ErrUnsupported is returned for configurations that cannot be verified
// with a plain HTTP probe (request signing, ambient credentials).
var ErrUnsupported = errors.New("credentials: test not supported for this configuration")

// Checker verifies that a client config can authenticate.
type Checker interface {
	Check(ctx context.Context, cfg model.ClientConfig) error
}

// Default endpoints probed when the config does not override the base URL.
const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultGoogleBaseURL    = "https://generativelanguage.googleapis.com"
	defaultAzureAPIVersion  = "2024-10-21"
	anthropicVersion        = "2023-06-01"
)

// HTTPChecker probes each SDK's model-listing endpoint, which requires
// valid credentials but has no side effects.
type HTTPChecker struct {
	httpClient *http.Client
}

// NewHTTPChecker returns a checker using client, or a client with timeout
// when client is nil.
func NewHTTPChecker(client *http.Client, timeout time.Duration) *HTTPChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPChecker{httpClient: client}
}

// Check implements Checker.
func (c *HTTPChecker) Check(ctx context.Context, cfg model.ClientConfig) error {
	sdk, err := cfg.SDK()
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	req, err := c.probe(ctx, sdk, cfg)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("credentials: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
}

func (c *HTTPChecker) probe(ctx context.Context, sdk model.SDK, cfg model.ClientConfig) (*http.Request, error) {
	var (
		target  string
		headers = http.Header{}
		extra   map[string]string
	)
	switch sdk {
	case model.SDKOpenAI:
		o := cfg.OpenAI
		if o.AuthenticationMethod.APIKey == nil {
			return nil, fmt.Errorf("credentials: openai: api key is required")
		}
		target = strings.TrimRight(orDefault(o.ClientKwargs.BaseURL, defaultOpenAIBaseURL), "/") + "/models"
		headers.Set("Authorization", "Bearer "+*o.AuthenticationMethod.APIKey)
		if o.ClientKwargs.Organization != nil {
			headers.Set("OpenAI-Organization", *o.ClientKwargs.Organization)
		}
		if o.ClientKwargs.Project != nil {
			headers.Set("OpenAI-Project", *o.ClientKwargs.Project)
		}
		extra = o.ClientKwargs.DefaultHeaders
	case model.SDKAzureOpenAI:
		a := cfg.AzureOpenAI
		if a.AuthenticationMethod.APIKey == nil {
			return nil, fmt.Errorf("%w: azure openai without an api key", ErrUnsupported)
		}
		q := url.Values{"api-version": {orDefault(a.ClientKwargs.APIVersion, defaultAzureAPIVersion)}}
		target = strings.TrimRight(a.ClientKwargs.AzureEndpoint, "/") + "/openai/models?" + q.Encode()
		headers.Set("api-key", *a.AuthenticationMethod.APIKey)
		extra = a.ClientKwargs.DefaultHeaders
	case model.SDKAnthropic:
		a := cfg.Anthropic
		if a.AuthenticationMethod.APIKey == nil {
			return nil, fmt.Errorf("credentials: anthropic: api key is required")
		}
		target = strings.TrimRight(orDefault(a.ClientKwargs.BaseURL, defaultAnthropicBaseURL), "/") + "/v1/models"
		headers.Set("x-api-key", *a.AuthenticationMethod.APIKey)
		headers.Set("anthropic-version", anthropicVersion)
		extra = a.ClientKwargs.DefaultHeaders
	case model.SDKGoogleGenAI:
		g := cfg.GoogleGenAI
		if g.AuthenticationMethod.APIKey == nil {
			return nil, fmt.Errorf("credentials: google genai: api key is required")
		}
		base := defaultGoogleBaseURL
		if opts := g.ClientKwargs.HTTPOptions; opts != nil {
			base = orDefault(opts.BaseURL, base)
			extra = opts.Headers
		}
		target = strings.TrimRight(base, "/") + "/v1beta/models"
		headers.Set("x-goog-api-key", *g.AuthenticationMethod.APIKey)
	case model.SDKAWSBedrock:
		return nil, fmt.Errorf("%w: aws bedrock requests are signed", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: sdk %s", ErrUnsupported, sdk)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("credentials: create request: %w", err)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// UpstreamError carries the provider's own error message so it can be shown
// to the user verbatim.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("credentials: provider returned %d: %s", e.StatusCode, e.Message)
}

// upstreamMessage extracts the error message from the JSON error envelopes
// the supported providers use, falling back to the raw body.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &flat) == nil && flat != "" {
			return flat
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return http.StatusText(http.StatusBadGateway)
	}
	return msg
}

func orDefault(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}
