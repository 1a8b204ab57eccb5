package server

import (
	"github.com/google/uuid"

	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/provider"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
)

// CreateSessionRequest is the optional body of POST /v1/sessions.
type CreateSessionRequest struct {
	TemplateFormat *model.TemplateFormat `json:"template_format,omitempty"`
	// Provider selects whose saved default model seeds the first instance.
	Provider *model.ModelProvider `json:"provider,omitempty"`
}

// SessionResponse is a session with its full state.
type SessionResponse struct {
	sessions.Info
	State playground.State `json:"state"`
}

// SetTemplateFormatRequest is the body of PUT .../template-format.
type SetTemplateFormatRequest struct {
	TemplateFormat model.TemplateFormat `json:"template_format"`
}

// SetVariableRequest is the body of PUT .../variables/{name}.
type SetVariableRequest struct {
	Value string `json:"value"`
}

// SetJSONInputRequest is the body of PUT .../json-input.
type SetJSONInputRequest struct {
	JSONInput string `json:"json_input"`
}

// SetStreamingRequest is the body of PUT .../streaming.
type SetStreamingRequest struct {
	Streaming bool `json:"streaming"`
}

// InstanceSource selects how POST .../instances builds the new instance.
type InstanceSource string

const (
	SourceBlank  InstanceSource = "blank"
	SourcePrompt InstanceSource = "prompt"
	SourceSpan   InstanceSource = "span"
)

// CreateInstanceRequest is the body of POST .../instances.
type CreateInstanceRequest struct {
	Source InstanceSource `json:"source"`
	// SharedTemplate, for blank instances, shares the first instance's
	// messages instead of copying them.
	SharedTemplate bool `json:"shared_template,omitempty"`
	// PromptName and PromptRef (version id, tag or "latest") select the
	// prompt version to load.
	PromptName string `json:"prompt_name,omitempty"`
	PromptRef  string `json:"prompt_ref,omitempty"`
	// SpanAttributes are the attributes of a recorded LLM span to replay.
	SpanAttributes map[string]any `json:"span_attributes,omitempty"`
	// ReplaceInstanceID swaps the loaded draft in for an existing instance.
	ReplaceInstanceID *model.InstanceID `json:"replace_instance_id,omitempty"`
}

// CreateInstanceResponse reports the new instance and any attributes that
// could not be replayed.
type CreateInstanceResponse struct {
	InstanceID model.InstanceID `json:"instance_id"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// DeleteInstanceResponse lists the messages collected with the instance.
type DeleteInstanceResponse struct {
	RemovedMessageIDs []model.MessageID `json:"removed_message_ids"`
}

// SaveInstanceRequest is the body of POST .../instances/{iid}/save.
type SaveInstanceRequest struct {
	PromptName        string  `json:"prompt_name"`
	PromptDescription *string `json:"prompt_description,omitempty"`
	Description       *string `json:"description,omitempty"`
	// Tag, when set, is pointed at the new version.
	Tag *string `json:"tag,omitempty"`
}

// AddMessagesRequest is the body of POST .../messages.
type AddMessagesRequest struct {
	Messages []model.Message `json:"messages"`
}

// AddMessagesResponse lists the ids assigned to the new messages.
type AddMessagesResponse struct {
	MessageIDs []model.MessageID `json:"message_ids"`
}

// PatchMessageResponse reports whether a patch was applied or queued.
type PatchMessageResponse struct {
	MessageID model.MessageID `json:"message_id"`
	Pending   bool            `json:"pending"`
}

// MoveMessageRequest is the body of POST .../messages/{mid}/move.
type MoveMessageRequest struct {
	Index int `json:"index"`
}

// AddToolRequest is the body of POST .../tools. A nil definition uses the
// provider's starter definition.
type AddToolRequest struct {
	EditorType model.ToolEditorType `json:"editor_type"`
	Definition map[string]any       `json:"definition,omitempty"`
}

// AddToolResponse carries the new tool id.
type AddToolResponse struct {
	ToolID model.ToolID `json:"tool_id"`
}

// ProviderSchemas is the response of GET /v1/providers/{provider}/schemas.
// Nil schemas mean any syntactically valid JSON is accepted.
type ProviderSchemas struct {
	Provider              model.ModelProvider `json:"provider"`
	ToolDefinition        map[string]any      `json:"tool_definition"`
	ToolCall              map[string]any      `json:"tool_call"`
	DefaultToolDefinition map[string]any      `json:"default_tool_definition"`
}

// ToolValidationKind selects which schema validate-tool checks against.
type ToolValidationKind string

const (
	ValidateDefinition ToolValidationKind = "definition"
	ValidateCall       ToolValidationKind = "call"
)

// ValidateToolRequest is the body of POST /v1/providers/{provider}/validate-tool.
type ValidateToolRequest struct {
	Kind ToolValidationKind `json:"kind"`
	JSON string             `json:"json"`
}

// ValidateToolResponse lists validation problems; an empty list is valid.
type ValidateToolResponse struct {
	Valid  bool                  `json:"valid"`
	Errors []provider.FieldError `json:"errors"`
}

// CredentialTestRequest is the body of POST /v1/credential-tests. With only
// CustomProviderID the stored config is tested; with both, Values is tested
// and secrets left redacted are taken from the stored provider.
type CredentialTestRequest struct {
	FormID           string               `json:"form_id"`
	Values           *provider.FormValues `json:"values,omitempty"`
	CustomProviderID *uuid.UUID           `json:"custom_provider_id,omitempty"`
}

// PromptResponse is a prompt with its versions, newest first.
type PromptResponse struct {
	model.Prompt
	Versions []model.PromptVersion `json:"versions"`
}

// SetTagRequest is the body of PUT /v1/prompts/{name}/tags/{tag}.
type SetTagRequest struct {
	VersionID uuid.UUID `json:"version_id"`
}
