package playground

import (
	"fmt"

	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/template"
)

// DenormalizedInstance is an instance with its template messages embedded,
// as consumed by rendering, prompt conversion and diffing.
type DenormalizedInstance struct {
	ID         model.InstanceID  `json:"id"`
	Model      model.ModelConfig `json:"model"`
	Tools      []model.Tool      `json:"tools"`
	ToolChoice *model.ToolChoice `json:"tool_choice,omitempty"`
	Messages   []model.Message   `json:"messages"`
	Dirty      bool              `json:"dirty"`
	Prompt     *model.PromptRef  `json:"prompt,omitempty"`
}

// Denormalize embeds the messages an instance references. It is a pure
// projection: the same inputs always give equal output.
func Denormalize(inst model.Instance, messages map[model.MessageID]model.Message) (DenormalizedInstance, error) {
	out := DenormalizedInstance{
		ID:         inst.ID,
		Model:      inst.Model,
		Tools:      inst.Tools,
		ToolChoice: inst.ToolChoice,
		Messages:   make([]model.Message, 0, len(inst.Template)),
		Dirty:      inst.Dirty,
		Prompt:     inst.Prompt,
	}
	for _, mid := range inst.Template {
		m, ok := messages[mid]
		if !ok {
			return DenormalizedInstance{}, fmt.Errorf("%w: instance %d references %d", ErrMessageNotFound, inst.ID, mid)
		}
		out.Messages = append(out.Messages, m)
	}
	return out, nil
}

// DenormalizeAll denormalizes every instance of a state, in order.
func DenormalizeAll(st State) ([]DenormalizedInstance, error) {
	out := make([]DenormalizedInstance, 0, len(st.Instances))
	for _, inst := range st.Instances {
		d, err := Denormalize(inst, st.Messages)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// VariablesState is the derived variable set of a session.
type VariablesState struct {
	// Keys are the referenced variable names in order of first appearance
	// (sorted paths for JSON_PATH).
	Keys []string `json:"keys"`
	// Values holds a value for every key: the cached value, the JSON value
	// at that path, or "" for a newly discovered name.
	Values map[string]string `json:"values"`
}

// DeriveVariables computes the variables referenced by instances under
// format. It reads nothing but its arguments.
func DeriveVariables(instances []DenormalizedInstance, format model.TemplateFormat, input Input) VariablesState {
	vs := VariablesState{Values: map[string]string{}}
	switch format {
	case model.TemplateFormatMustache, model.TemplateFormatFString:
		seen := map[string]struct{}{}
		for _, inst := range instances {
			for _, m := range inst.Messages {
				for _, name := range template.ExtractVariables(m.Text(), format) {
					if _, ok := seen[name]; ok {
						continue
					}
					seen[name] = struct{}{}
					vs.Keys = append(vs.Keys, name)
				}
			}
		}
		for _, k := range vs.Keys {
			vs.Values[k] = input.VariablesValueCache[k]
		}
	case model.TemplateFormatJSONPath:
		obj, ok := jsonutil.SafelyParseJSON(input.JSONInput).Object()
		if !ok {
			return vs
		}
		flat := jsonutil.Flatten(obj, jsonutil.FlattenOptions{FormatIndices: true})
		vs.Keys = jsonutil.FlattenKeys(obj, jsonutil.FlattenOptions{FormatIndices: true})
		for _, k := range vs.Keys {
			vs.Values[k] = jsonutil.ToString(flat[k])
		}
	}
	return vs
}

func deriveFromState(st State) (VariablesState, error) {
	all, err := DenormalizeAll(st)
	if err != nil {
		return VariablesState{}, err
	}
	return DeriveVariables(all, st.TemplateFormat, st.Input), nil
}

// RenderInstance returns inst with variable values substituted into every
// message. Unknown variables are left as written.
func RenderInstance(inst DenormalizedInstance, format model.TemplateFormat, vars map[string]string) DenormalizedInstance {
	out := inst
	out.Messages = make([]model.Message, len(inst.Messages))
	for i, m := range inst.Messages {
		if m.Content != nil {
			rendered := template.Render(*m.Content, format, vars)
			m.Content = &rendered
		}
		out.Messages[i] = m
	}
	return out
}
