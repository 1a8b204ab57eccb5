package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
)

// FieldError is a validation message attached to one field. Field is a JSON
// pointer into the validated document ("/" for the document itself) or a
// form field name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const openAIToolDefinitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "type": {"const": "function"},
    "function": {
      "type": "object",
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "parameters": {"type": "object"},
        "strict": {"type": ["boolean", "null"]}
      },
      "required": ["name"]
    }
  },
  "required": ["type", "function"]
}`

const openAIToolCallSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "type": {"const": "function"},
    "function": {
      "type": "object",
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "arguments": {"type": ["string", "object"]}
      },
      "required": ["name", "arguments"]
    }
  },
  "required": ["id", "function"]
}`

const anthropicToolDefinitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "input_schema": {"type": "object"}
  },
  "required": ["name", "input_schema"]
}`

const anthropicToolCallSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "type": {"const": "tool_use"},
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "input": {"type": "object"}
  },
  "required": ["id", "name", "input"]
}`

const awsToolDefinitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "toolSpec": {
      "type": "object",
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "inputSchema": {
          "type": "object",
          "properties": {"json": {"type": "object"}},
          "required": ["json"]
        }
      },
      "required": ["name", "inputSchema"]
    }
  },
  "required": ["toolSpec"]
}`

const awsToolCallSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "toolUse": {
      "type": "object",
      "properties": {
        "toolUseId": {"type": "string"},
        "name": {"type": "string", "minLength": 1},
        "input": {"type": "object"}
      },
      "required": ["toolUseId", "name", "input"]
    }
  },
  "required": ["toolUse"]
}`

type schemaKind int

const (
	kindToolDefinition schemaKind = iota
	kindToolCall
)

var schemaSources = map[toolFamily][2]string{
	familyOpenAI:    {openAIToolDefinitionSchema, openAIToolCallSchema},
	familyAnthropic: {anthropicToolDefinitionSchema, anthropicToolCallSchema},
	familyAWS:       {awsToolDefinitionSchema, awsToolCallSchema},
}

var (
	compileOnce sync.Once
	compiled    map[toolFamily][2]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	compiled = make(map[toolFamily][2]*jsonschema.Schema, len(schemaSources))
	for fam, srcs := range schemaSources {
		var pair [2]*jsonschema.Schema
		for kind, src := range srcs {
			url := fmt.Sprintf("kaiwa://schemas/%d/%d.json", fam, kind)
			c := jsonschema.NewCompiler()
			c.Draft = jsonschema.Draft7
			if err := c.AddResource(url, strings.NewReader(src)); err != nil {
				compileErr = fmt.Errorf("provider: add schema %s: %w", url, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("provider: compile schema %s: %w", url, err)
				return
			}
			pair[kind] = s
		}
		compiled[fam] = pair
	}
}

func schemaSource(p model.ModelProvider, kind schemaKind) (string, bool, error) {
	// An instance with no provider yet edits tools free-form.
	if p == "" {
		return "", false, nil
	}
	s, err := Lookup(p)
	if err != nil {
		return "", false, err
	}
	srcs, ok := schemaSources[s.family]
	if !ok {
		return "", false, nil
	}
	return srcs[kind], true, nil
}

// ToolDefinitionSchema returns the JSON schema for tool definitions of p.
// ok is false when p has no structured tool validation; callers then accept
// any syntactically valid JSON.
func ToolDefinitionSchema(p model.ModelProvider) (schema map[string]any, ok bool, err error) {
	return parsedSchema(p, kindToolDefinition)
}

// ToolCallSchema returns the JSON schema for tool calls produced by p.
func ToolCallSchema(p model.ModelProvider) (schema map[string]any, ok bool, err error) {
	return parsedSchema(p, kindToolCall)
}

func parsedSchema(p model.ModelProvider, kind schemaKind) (map[string]any, bool, error) {
	src, ok, err := schemaSource(p, kind)
	if err != nil || !ok {
		return nil, false, err
	}
	obj, _ := jsonutil.SafelyParseJSON(src).Object()
	return obj, true, nil
}

// ValidateToolDefinition checks raw JSON against p's tool definition schema.
func ValidateToolDefinition(p model.ModelProvider, raw string) ([]FieldError, error) {
	return validate(p, kindToolDefinition, raw)
}

// ValidateToolCall checks raw JSON against p's tool call schema.
func ValidateToolCall(p model.ModelProvider, raw string) ([]FieldError, error) {
	return validate(p, kindToolCall, raw)
}

func validate(p model.ModelProvider, kind schemaKind, raw string) ([]FieldError, error) {
	parsed := jsonutil.SafelyParseJSON(raw)
	if p == "" {
		if parsed.Err != nil {
			return []FieldError{{Field: "/", Message: parsed.Err.Error()}}, nil
		}
		return nil, nil
	}
	s, err := Lookup(p)
	if err != nil {
		return nil, err
	}
	if parsed.Err != nil {
		return []FieldError{{Field: "/", Message: parsed.Err.Error()}}, nil
	}
	if _, ok := schemaSources[s.family]; !ok {
		return nil, nil
	}

	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return nil, compileErr
	}
	verr := compiled[s.family][kind].Validate(parsed.JSON)
	if verr == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(verr, &ve) {
		return nil, fmt.Errorf("provider: validate: %w", verr)
	}
	return fieldErrors(ve), nil
}

// fieldErrors flattens a validation error tree into its leaf messages.
func fieldErrors(ve *jsonschema.ValidationError) []FieldError {
	var out []FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := e.InstanceLocation
			if field == "" {
				field = "/"
			}
			out = append(out, FieldError{Field: field, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
