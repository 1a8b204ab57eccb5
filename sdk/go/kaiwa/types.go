package kaiwa

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionInfo describes a live playground session.
type SessionInfo struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	Instances int       `json:"instances"`
	Version   uint64    `json:"version"`
}

// Session is a session together with its full playground state. The state
// is left undecoded; its shape follows the server's GET /v1/sessions/{id}.
type Session struct {
	SessionInfo
	State json.RawMessage `json:"state"`
}

// CreateSessionRequest seeds a new session. Both fields are optional.
type CreateSessionRequest struct {
	TemplateFormat string `json:"template_format,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

// Variables lists the template variables referenced by a session's
// instances, in order of first appearance, with their current values.
type Variables struct {
	Keys   []string          `json:"keys"`
	Values map[string]string `json:"values"`
}

// Prompt is a saved prompt and its versions, newest first.
type Prompt struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Versions    []PromptVersion `json:"versions"`
}

// PromptMessage is one message of a prompt version.
type PromptMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID *string          `json:"tool_call_id,omitempty"`
}

// PromptVersion is an immutable snapshot of a playground instance.
type PromptVersion struct {
	ID                   uuid.UUID        `json:"id"`
	PromptID             uuid.UUID        `json:"prompt_id"`
	Description          *string          `json:"description,omitempty"`
	TemplateFormat       string           `json:"template_format"`
	Messages             []PromptMessage  `json:"messages"`
	ModelProvider        string           `json:"model_provider"`
	ModelName            string           `json:"model_name"`
	InvocationParameters []map[string]any `json:"invocation_parameters"`
	Tools                []map[string]any `json:"tools,omitempty"`
	ToolChoice           map[string]any   `json:"tool_choice,omitempty"`
	Tags                 []string         `json:"tags,omitempty"`
	ContentHash          string           `json:"content_hash,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`

	// Raw is the version exactly as the server sent it. Writing Raw rather
	// than re-encoding keeps the content hash verifiable.
	Raw json.RawMessage `json:"-"`
}

// Provider describes a model provider the server knows about.
type Provider struct {
	Provider               string `json:"provider"`
	DisplayName            string `json:"display_name"`
	DefaultBaseURL         string `json:"default_base_url,omitempty"`
	RequiresEndpoint       bool   `json:"requires_endpoint,omitempty"`
	RequiresRegion         bool   `json:"requires_region,omitempty"`
	SupportsToolValidation bool   `json:"supports_tool_validation"`
	CustomProviderSDK      string `json:"custom_provider_sdk,omitempty"`
}

// ToolKind selects the schema ValidateTool checks against.
type ToolKind string

const (
	ToolDefinition ToolKind = "definition"
	ToolCall       ToolKind = "call"
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ToolValidation is the result of ValidateTool.
type ToolValidation struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}
