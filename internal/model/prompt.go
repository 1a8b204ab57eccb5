package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Prompt is a named, versioned prompt.
type Prompt struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PromptMessage is a message inside a stored prompt template.
type PromptMessage struct {
	Role       Role             `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID *string          `json:"tool_call_id,omitempty"`
}

// PromptVersion is an immutable snapshot of a playground instance.
type PromptVersion struct {
	ID                   uuid.UUID                  `json:"id"`
	PromptID             uuid.UUID                  `json:"prompt_id"`
	Description          *string                    `json:"description,omitempty"`
	TemplateFormat       TemplateFormat             `json:"template_format"`
	Messages             []PromptMessage            `json:"messages"`
	ModelProvider        ModelProvider              `json:"model_provider"`
	ModelName            string                     `json:"model_name"`
	InvocationParameters []InvocationParameterInput `json:"invocation_parameters"`
	Tools                []map[string]any           `json:"tools,omitempty"`
	ToolChoice           *ToolChoice                `json:"tool_choice,omitempty"`
	Tags                 []string                   `json:"tags,omitempty"`
	// ContentHash identifies the version's content. Versions saved before
	// hashing existed carry an empty hash until backfilled.
	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields a version must carry before it is stored.
func (v PromptVersion) Validate() error {
	if !v.ModelProvider.Valid() {
		return fmt.Errorf("model_provider %q is not a known provider", v.ModelProvider)
	}
	if v.ModelName == "" {
		return fmt.Errorf("model_name is required")
	}
	if _, err := ParseTemplateFormat(string(v.TemplateFormat)); err != nil {
		return err
	}
	if len(v.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range v.Messages {
		if _, err := ParseRole(string(m.Role)); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	if v.ToolChoice != nil {
		if err := v.ToolChoice.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PromptVersionTag points a mutable name at a version.
type PromptVersionTag struct {
	PromptID  uuid.UUID `json:"prompt_id"`
	Name      string    `json:"name"`
	VersionID uuid.UUID `json:"version_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
