package playground

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/provider"
)

// InstanceDraft is an instance built outside a store. Message ids and the
// instance id are assigned when the draft is added with Store.AddDraft.
type InstanceDraft struct {
	Instance model.Instance  `json:"instance"`
	Messages []model.Message `json:"messages"`
	// TemplateFormat, when set, replaces the session's template format.
	TemplateFormat *model.TemplateFormat `json:"template_format,omitempty"`
}

// InstanceFromPromptVersion builds a draft that reproduces a stored prompt
// version and links back to it through ref.
func InstanceFromPromptVersion(pv model.PromptVersion, ref model.PromptRef) (InstanceDraft, error) {
	if err := pv.Validate(); err != nil {
		return InstanceDraft{}, fmt.Errorf("playground: prompt version %s: %w", pv.ID, err)
	}
	name := pv.ModelName
	inst := model.Instance{
		Model: model.ModelConfig{
			Provider:             pv.ModelProvider,
			ModelName:            &name,
			InvocationParameters: slices.Clone(pv.InvocationParameters),
		},
		ToolChoice: cloneToolChoice(pv.ToolChoice),
	}
	for i, def := range pv.Tools {
		inst.Tools = append(inst.Tools, model.Tool{
			ID:         model.ToolID(i + 1),
			EditorType: model.ToolEditorJSON,
			Definition: def,
		})
	}
	if ref.VersionID == nil {
		vid := pv.ID
		ref.VersionID = &vid
	}
	inst.Prompt = &ref

	msgs := make([]model.Message, 0, len(pv.Messages))
	for _, pm := range pv.Messages {
		role, _ := model.ParseRole(string(pm.Role))
		msgs = append(msgs, model.Message{
			Role:       role,
			Content:    pm.Content,
			ToolCalls:  pm.ToolCalls,
			ToolCallID: pm.ToolCallID,
		})
	}
	format := pv.TemplateFormat
	return InstanceDraft{Instance: inst, Messages: msgs, TemplateFormat: &format}, nil
}

// ErrNoModelSelected is returned when saving an instance with no model name.
var ErrNoModelSelected = errors.New("playground: no model selected")

// ToPromptVersionInput converts an instance into the payload for a new
// prompt version. The returned version has no id or prompt id yet.
func ToPromptVersionInput(inst DenormalizedInstance, format model.TemplateFormat, description *string) (model.PromptVersion, error) {
	if inst.Model.ModelName == nil || *inst.Model.ModelName == "" {
		return model.PromptVersion{}, ErrNoModelSelected
	}
	pv := model.PromptVersion{
		Description:          description,
		TemplateFormat:       format,
		ModelProvider:        inst.Model.Provider,
		ModelName:            *inst.Model.ModelName,
		InvocationParameters: slices.Clone(inst.Model.InvocationParameters),
		ToolChoice:           cloneToolChoice(inst.ToolChoice),
	}
	for _, m := range inst.Messages {
		pv.Messages = append(pv.Messages, model.PromptMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	for _, t := range inst.Tools {
		pv.Tools = append(pv.Tools, t.Definition)
	}
	if len(pv.Tools) == 0 {
		pv.ToolChoice = nil
	}
	if err := pv.Validate(); err != nil {
		return model.PromptVersion{}, fmt.Errorf("playground: %w", err)
	}
	return pv, nil
}

// ToolEditorView is what a tool editor needs for one instance: the schema
// tool definitions are checked against (nil for free-form providers) and
// per-tool validation problems.
type ToolEditorView struct {
	Provider model.ModelProvider `json:"provider"`
	Schema   map[string]any      `json:"schema"`
	Tools    []ToolView          `json:"tools"`
}

// ToolView is one tool with its validation problems.
type ToolView struct {
	model.Tool
	Errors []provider.FieldError `json:"errors,omitempty"`
}

// ToolEditor validates every tool of an instance against its provider.
func ToolEditor(inst DenormalizedInstance) (ToolEditorView, error) {
	schema, _, err := provider.ToolDefinitionSchema(inst.Model.Provider)
	if err != nil {
		return ToolEditorView{}, err
	}
	view := ToolEditorView{Provider: inst.Model.Provider, Schema: schema}
	for _, t := range inst.Tools {
		tv := ToolView{Tool: t}
		raw := jsonutil.SafelyStringifyJSON(t.Definition, false)
		if raw.Err != nil {
			tv.Errors = []provider.FieldError{{Field: "/", Message: raw.Err.Error()}}
		} else {
			errs, verr := provider.ValidateToolDefinition(inst.Model.Provider, raw.JSON)
			if verr != nil {
				return ToolEditorView{}, verr
			}
			tv.Errors = errs
		}
		view.Tools = append(view.Tools, tv)
	}
	return view, nil
}
