package playground

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/provider"
)

// ErrNotLLMSpan is returned for span attributes that carry no llm section.
var ErrNotLLMSpan = errors.New("playground: span has no llm attributes")

// spanProviders maps OpenInference llm.provider / llm.system values.
var spanProviders = map[string]model.ModelProvider{
	"openai":    model.ProviderOpenAI,
	"azure":     model.ProviderAzureOpenAI,
	"anthropic": model.ProviderAnthropic,
	"aws":       model.ProviderAWS,
	"bedrock":   model.ProviderAWS,
	"google":    model.ProviderGoogle,
	"vertexai":  model.ProviderGoogle,
	"gemini":    model.ProviderGoogle,
	"deepseek":  model.ProviderDeepSeek,
	"xai":       model.ProviderXAI,
	"ollama":    model.ProviderOllama,
}

// canonical parameter names recognised in recorded invocation parameters.
var spanCanonical = map[string]model.CanonicalName{
	"temperature":           model.CanonicalTemperature,
	"max_tokens":            model.CanonicalMaxCompletionTokens,
	"max_completion_tokens": model.CanonicalMaxCompletionTokens,
	"max_output_tokens":     model.CanonicalMaxCompletionTokens,
	"stop":                  model.CanonicalStopSequences,
	"stop_sequences":        model.CanonicalStopSequences,
	"top_p":                 model.CanonicalTopP,
	"seed":                  model.CanonicalRandomSeed,
	"response_format":       model.CanonicalResponseFormat,
}

// InstanceFromSpanAttributes rebuilds an instance from the OpenInference
// attributes of a recorded LLM span, so the call can be replayed. Attributes
// may be nested ({"llm": {...}}) or flat ("llm.model_name"). Parts that
// cannot be read are skipped and reported as warnings.
func InstanceFromSpanAttributes(attrs map[string]any) (InstanceDraft, []string, error) {
	llm, ok := nestAttributes(attrs)["llm"].(map[string]any)
	if !ok {
		return InstanceDraft{}, nil, ErrNotLLMSpan
	}
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	cfg := model.ModelConfig{Provider: model.ProviderOpenAI}
	providerName, _ := llm["provider"].(string)
	if providerName == "" {
		providerName, _ = llm["system"].(string)
	}
	if p, ok := spanProviders[strings.ToLower(providerName)]; ok {
		cfg.Provider = p
	} else if providerName != "" {
		warn("unknown provider %q, using %s", providerName, cfg.Provider)
	}
	if name, ok := llm["model_name"].(string); ok && name != "" {
		cfg.ModelName = &name
	}

	inst := model.Instance{}
	if raw, ok := llm["invocation_parameters"]; ok {
		params := parseJSONAttr(raw)
		obj, isObj := params.(map[string]any)
		if !isObj {
			warn("llm.invocation_parameters is not a JSON object")
		}
		if tc, ok := obj["tool_choice"]; ok {
			choice := provider.DecodeToolChoice(tc)
			inst.ToolChoice = &choice
			delete(obj, "tool_choice")
		}
		cfg.InvocationParameters = spanParameters(obj)
	}
	inst.Model = cfg

	var msgs []model.Message
	for _, key := range []string{"input_messages", "output_messages"} {
		list, _ := llm[key].([]any)
		for i, item := range list {
			m, err := spanMessage(item)
			if err != nil {
				warn("llm.%s.%d: %v", key, i, err)
				continue
			}
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		warn("span has no readable messages")
	}

	tools, _ := llm["tools"].([]any)
	for i, item := range tools {
		entry, _ := item.(map[string]any)
		tool, _ := entry["tool"].(map[string]any)
		def, ok := parseJSONAttr(tool["json_schema"]).(map[string]any)
		if !ok {
			warn("llm.tools.%d: missing tool.json_schema", i)
			continue
		}
		inst.Tools = append(inst.Tools, model.Tool{
			ID: model.ToolID(len(inst.Tools) + 1), EditorType: model.ToolEditorJSON, Definition: def,
		})
	}
	if len(inst.Tools) == 0 {
		inst.ToolChoice = nil
	}
	return InstanceDraft{Instance: inst, Messages: msgs}, warnings, nil
}

func spanMessage(item any) (model.Message, error) {
	entry, _ := item.(map[string]any)
	msg, ok := entry["message"].(map[string]any)
	if !ok {
		return model.Message{}, errors.New("missing message")
	}
	roleName, _ := msg["role"].(string)
	role, err := model.ParseRole(roleName)
	if err != nil {
		return model.Message{}, err
	}
	m := model.Message{Role: role}
	if content, ok := msg["content"].(string); ok {
		m.Content = &content
	} else if contents, ok := msg["contents"].([]any); ok {
		var parts []string
		for _, c := range contents {
			mc, _ := c.(map[string]any)
			inner, _ := mc["message_content"].(map[string]any)
			if text, ok := inner["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			text := strings.Join(parts, "\n")
			m.Content = &text
		}
	}
	if id, ok := msg["tool_call_id"].(string); ok && id != "" {
		m.ToolCallID = &id
	}
	calls, _ := msg["tool_calls"].([]any)
	for _, c := range calls {
		entry, _ := c.(map[string]any)
		tc, _ := entry["tool_call"].(map[string]any)
		fn, _ := tc["function"].(map[string]any)
		name, _ := fn["name"].(string)
		if name == "" {
			continue
		}
		args := fn["arguments"]
		if args == nil {
			args = "{}"
		}
		if _, isString := args.(string); !isString {
			args = jsonutil.ToString(args)
		}
		id, _ := tc["id"].(string)
		m.ToolCalls = append(m.ToolCalls, map[string]any{
			"id":   id,
			"type": "function",
			"function": map[string]any{
				"name":      name,
				"arguments": args,
			},
		})
	}
	return m, nil
}

func spanParameters(obj map[string]any) []model.InvocationParameterInput {
	names := make([]string, 0, len(obj))
	for k := range obj {
		names = append(names, k)
	}
	sort.Strings(names)

	var out []model.InvocationParameterInput
	for _, name := range names {
		v := obj[name]
		in := model.InvocationParameterInput{InvocationName: name}
		if c, ok := spanCanonical[name]; ok {
			in.CanonicalName = model.CanonicalPtr(c)
		}
		switch t := v.(type) {
		case nil:
			continue
		case bool:
			in.ValueBool = &t
		case string:
			if in.CanonicalName != nil && *in.CanonicalName == model.CanonicalStopSequences {
				in.ValueStringList = []string{t}
			} else {
				in.ValueString = &t
			}
		case float64:
			if c := in.CanonicalName; c != nil && (*c == model.CanonicalMaxCompletionTokens || *c == model.CanonicalRandomSeed) {
				n := int64(t)
				in.ValueInt = &n
			} else {
				in.ValueFloat = &t
			}
		case []any:
			list := make([]string, 0, len(t))
			for _, item := range t {
				s, ok := item.(string)
				if !ok {
					list = nil
					break
				}
				list = append(list, s)
			}
			if list != nil {
				in.ValueStringList = list
			} else {
				in.ValueJSON = t
			}
		default:
			in.ValueJSON = t
		}
		out = append(out, in)
	}
	return out
}

// parseJSONAttr decodes attribute values that OpenInference records as
// JSON strings. Other values are returned unchanged.
func parseJSONAttr(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	res := jsonutil.SafelyParseJSON(s)
	if res.Err != nil {
		return nil
	}
	return res.JSON
}

// nestAttributes turns dotted attribute keys into nested objects, with
// numeric segments becoming array positions. Already nested values merge.
func nestAttributes(attrs map[string]any) map[string]any {
	attrs, _ = deepCopy(attrs).(map[string]any)
	root := map[string]any{}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		insertPath(root, strings.Split(k, "."), attrs[k])
	}
	out, ok := compactArrays(root).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

// insertPath stores v under path. Intermediate containers are maps; numeric
// keys are converted to arrays afterwards by compactArrays.
func insertPath(node map[string]any, path []string, v any) {
	for i, seg := range path {
		if i == len(path)-1 {
			if existing, ok := node[seg].(map[string]any); ok {
				if incoming, ok := v.(map[string]any); ok {
					for k, iv := range incoming {
						existing[k] = iv
					}
					return
				}
			}
			node[seg] = v
			return
		}
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[seg] = next
		}
		node = next
	}
}

// compactArrays converts maps whose keys are exactly 0..n-1 into slices.
func compactArrays(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = compactArrays(child)
		}
		if len(t) == 0 {
			return t
		}
		list := make([]any, len(t))
		for k, child := range t {
			idx, err := strconv.Atoi(k)
			if err != nil || idx < 0 || idx >= len(t) {
				return t
			}
			list[idx] = child
		}
		return list
	case []any:
		for i, child := range t {
			t[i] = compactArrays(child)
		}
		return t
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
