package kaiwa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the kaiwa server (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is exchanged for a bearer token. Leave it empty for servers
	// running with authentication disabled.
	APIKey string

	// Role narrows the issued token to admin, editor or viewer. Empty means
	// whatever the server issues by default.
	Role string

	// HTTPClient is an optional custom HTTP client. If nil, a client with
	// Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the kaiwa API. All methods are safe for
// concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("kaiwa: BaseURL is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("kaiwa: invalid BaseURL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{baseURL: baseURL, client: httpClient}
	if cfg.APIKey != "" {
		c.tokenMgr = newTokenManager(baseURL, cfg.APIKey, cfg.Role, httpClient)
	}
	return c, nil
}

// CreateSession opens a playground session with one empty instance.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the live sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns a session with its state.
func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id.String(), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession closes a session, flushing pending edits first.
func (c *Client) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/sessions/"+id.String(), nil, nil)
}

// SetVariable stores a value for a template variable and returns the
// session's variables afterwards.
func (c *Client) SetVariable(ctx context.Context, id uuid.UUID, name, value string) (*Variables, error) {
	path := "/v1/sessions/" + id.String() + "/variables/" + url.PathEscape(name)
	var v Variables
	if err := c.do(ctx, http.MethodPut, path, map[string]string{"value": value}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Variables returns the variables referenced by the session's instances.
func (c *Client) Variables(ctx context.Context, id uuid.UUID) (*Variables, error) {
	var v Variables
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id.String()+"/variables", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListProviders returns every model provider the server supports.
func (c *Client) ListProviders(ctx context.Context) ([]Provider, error) {
	var out []Provider
	if err := c.do(ctx, http.MethodGet, "/v1/providers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateTool checks a tool definition or tool call, given as JSON text,
// against the provider's schema.
func (c *Client) ValidateTool(ctx context.Context, provider string, kind ToolKind, doc string) (*ToolValidation, error) {
	path := "/v1/providers/" + url.PathEscape(provider) + "/validate-tool"
	body := map[string]string{"kind": string(kind), "json": doc}
	var out ToolValidation
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPrompt returns a saved prompt and its versions.
func (c *Client) GetPrompt(ctx context.Context, name string) (*Prompt, error) {
	var p Prompt
	if err := c.do(ctx, http.MethodGet, "/v1/prompts/"+url.PathEscape(name), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPromptVersion resolves ref (a version id, a tag or "latest") to a
// version of the named prompt. Raw holds the version as sent.
func (c *Client) GetPromptVersion(ctx context.Context, name, ref string) (*PromptVersion, error) {
	if ref == "" {
		ref = "latest"
	}
	path := "/v1/prompts/" + url.PathEscape(name) + "/versions/" + url.PathEscape(ref)
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	var pv PromptVersion
	if err := json.Unmarshal(raw, &pv); err != nil {
		return nil, fmt.Errorf("kaiwa: decode prompt version: %w", err)
	}
	pv.Raw = raw
	return &pv, nil
}

// Health reports the server's health. It needs no credentials.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("kaiwa: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kaiwa: GET /health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if err := handleResponse(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return fmt.Errorf("kaiwa: marshal request body: %w", err)
		}
	}

	err := c.send(ctx, method, path, encoded, dest)
	// A token the server no longer accepts, e.g. after a key rotation, is
	// retried once with a fresh one.
	if c.tokenMgr != nil && IsUnauthorized(err) {
		c.tokenMgr.invalidate()
		err = c.send(ctx, method, path, encoded, dest)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, dest any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("kaiwa: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokenMgr != nil {
		token, err := c.tokenMgr.getToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("kaiwa: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func handleResponse(resp *http.Response, dest any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kaiwa: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, raw)
	}
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}
	return decodeEnvelope(raw, dest)
}

// decodeEnvelope unwraps the server's {"data": ..., "meta": ...} envelope.
func decodeEnvelope(raw []byte, dest any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("kaiwa: decode response envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return errors.New("kaiwa: response carried no data")
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("kaiwa: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
