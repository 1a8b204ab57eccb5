package model

import (
	"fmt"

	"github.com/google/uuid"
)

// InstanceID identifies a playground instance inside one store.
type InstanceID int

// ToolID is an instance-local tool sequence number.
type ToolID int

// TemplateFormat selects the variable syntax of prompt templates.
type TemplateFormat string

const (
	TemplateFormatNone     TemplateFormat = "NONE"
	TemplateFormatMustache TemplateFormat = "MUSTACHE"
	TemplateFormatFString  TemplateFormat = "F_STRING"
	TemplateFormatJSONPath TemplateFormat = "JSON_PATH"
)

// ParseTemplateFormat validates a template format string.
func ParseTemplateFormat(s string) (TemplateFormat, error) {
	switch f := TemplateFormat(s); f {
	case TemplateFormatNone, TemplateFormatMustache, TemplateFormatFString, TemplateFormatJSONPath:
		return f, nil
	default:
		return "", fmt.Errorf("unknown template format %q", s)
	}
}

// ToolEditorType selects how a tool definition is authored.
type ToolEditorType string

const (
	ToolEditorJSON   ToolEditorType = "json"
	ToolEditorChoice ToolEditorType = "choice"
)

// Tool is a callable definition attached to an instance.
type Tool struct {
	ID         ToolID         `json:"id"`
	EditorType ToolEditorType `json:"editor_type"`
	Definition map[string]any `json:"definition"`
}

// ToolChoiceType is the tool-choice policy of an instance.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceSpecific ToolChoiceType = "specific"
)

// ToolChoice is a provider-neutral tool-choice policy.
type ToolChoice struct {
	Type         ToolChoiceType `json:"type"`
	FunctionName string         `json:"function_name,omitempty"`
}

// Validate checks that a specific choice names a function.
func (c ToolChoice) Validate() error {
	switch c.Type {
	case ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return nil
	case ToolChoiceSpecific:
		if c.FunctionName == "" {
			return fmt.Errorf("tool choice %q requires function_name", c.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown tool choice %q", c.Type)
	}
}

// ModelConfig is the model selection of an instance. Which of the endpoint
// fields apply depends on the provider.
type ModelConfig struct {
	Provider                      ModelProvider                   `json:"provider"`
	ModelName                     *string                         `json:"model_name"`
	BaseURL                       *string                         `json:"base_url,omitempty"`
	Endpoint                      *string                         `json:"endpoint,omitempty"`
	APIVersion                    *string                         `json:"api_version,omitempty"`
	Region                        *string                         `json:"region,omitempty"`
	CustomProviderID              *uuid.UUID                      `json:"custom_provider_id,omitempty"`
	InvocationParameters          []InvocationParameterInput      `json:"invocation_parameters"`
	SupportedInvocationParameters []InvocationParameterDefinition `json:"supported_invocation_parameters"`
}

// PromptRef links an instance to a stored prompt version.
type PromptRef struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	VersionID *uuid.UUID `json:"version_id,omitempty"`
	Tag       *string    `json:"tag,omitempty"`
}

// Instance is one configured run of a model in the playground. Template
// holds message references only; the store owns the messages.
type Instance struct {
	ID         InstanceID  `json:"id"`
	Model      ModelConfig `json:"model"`
	Tools      []Tool      `json:"tools"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`
	Template   []MessageID `json:"template"`
	Dirty      bool        `json:"dirty"`
	Prompt     *PromptRef  `json:"prompt,omitempty"`
}

// NextToolID returns the next instance-local tool id.
func (i Instance) NextToolID() ToolID {
	var next ToolID = 1
	for _, t := range i.Tools {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next
}

// InstancePatch replaces the sub-objects that are set.
type InstancePatch struct {
	Model      *ModelConfig `json:"model,omitempty"`
	Tools      []Tool       `json:"tools,omitempty"`
	ToolChoice *ToolChoice  `json:"tool_choice,omitempty"`
	Template   []MessageID  `json:"template,omitempty"`
	Prompt     *PromptRef   `json:"prompt,omitempty"`
	// UnlinkPrompt clears the prompt reference.
	UnlinkPrompt bool `json:"unlink_prompt,omitempty"`
}
