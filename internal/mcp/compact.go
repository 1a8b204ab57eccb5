package mcp

import (
	"strconv"

	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/provider"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
)

// maxPreview bounds message text in session summaries.
const maxPreview = 200

// compactInstance reduces a denormalized instance to what an agent needs to
// follow along: model, tool names and truncated messages.
func compactInstance(inst playground.DenormalizedInstance) map[string]any {
	out := map[string]any{
		"id":       inst.ID,
		"provider": inst.Model.Provider,
		"dirty":    inst.Dirty,
	}
	if inst.Model.ModelName != nil {
		out["model_name"] = *inst.Model.ModelName
	}
	if inst.Prompt != nil {
		out["prompt"] = inst.Prompt
	}
	if len(inst.Model.InvocationParameters) > 0 {
		params := make([]string, 0, len(inst.Model.InvocationParameters))
		for _, p := range inst.Model.InvocationParameters {
			params = append(params, p.InvocationName)
		}
		out["invocation_parameters"] = params
	}

	tools := make([]string, 0, len(inst.Tools))
	for _, t := range inst.Tools {
		tools = append(tools, toolName(inst.Model.Provider, t))
	}
	out["tools"] = tools

	msgs := make([]map[string]any, 0, len(inst.Messages))
	for _, m := range inst.Messages {
		msg := map[string]any{
			"id":   m.ID,
			"role": m.Role,
			"text": truncate(m.Text(), maxPreview),
		}
		if len(m.ToolCalls) > 0 {
			msg["tool_calls"] = len(m.ToolCalls)
		}
		msgs = append(msgs, msg)
	}
	out["messages"] = msgs
	return out
}

// compactSession summarises a session snapshot. Instances whose message
// template references missing messages are reported by id under "broken".
func compactSession(info sessions.Info, st playground.State) map[string]any {
	instances := make([]map[string]any, 0, len(st.Instances))
	var broken []model.InstanceID
	for _, inst := range st.Instances {
		d, err := playground.Denormalize(inst, st.Messages)
		if err != nil {
			broken = append(broken, inst.ID)
			continue
		}
		instances = append(instances, compactInstance(d))
	}

	out := map[string]any{
		"id":              info.ID,
		"version":         st.Version,
		"created_at":      info.CreatedAt,
		"last_used":       info.LastUsed,
		"template_format": st.TemplateFormat,
		"streaming":       st.Streaming,
		"variables":       st.Variables,
		"instances":       instances,
	}
	if len(broken) > 0 {
		out["broken"] = broken
	}
	return out
}

// toolName returns the function name of a tool definition, falling back to
// the tool id when the definition has none.
func toolName(p model.ModelProvider, t model.Tool) string {
	if name, ok := provider.ToolName(p, t.Definition); ok && name != "" {
		return name
	}
	return "tool-" + strconv.Itoa(int(t.ID))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
