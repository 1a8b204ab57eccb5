package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kaiwa/internal/jsonutil"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/playground"
	"github.com/ashita-ai/kaiwa/internal/provider"
	"github.com/ashita-ai/kaiwa/internal/template"
)

const templateFormatDescription = "Template syntax: MUSTACHE ({{name}}), F_STRING ({name}), JSON_PATH (variables are paths into json_input) or NONE. Defaults to MUSTACHE."

func (s *Server) registerTools() {
	// kaiwa_extract_variables: list the variables a template references.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaiwa_extract_variables",
			mcplib.WithDescription(`List the variables a prompt template references.

WHEN TO USE: Before rendering a template, to learn which values it needs.

Variables are returned in order of first appearance without duplicates.
For JSON_PATH templates the variables are the flattened paths of json_input.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("text",
				mcplib.Description("The template text"),
				mcplib.Required(),
			),
			mcplib.WithString("template_format",
				mcplib.Description(templateFormatDescription),
				mcplib.Enum(formatNames()...),
			),
			mcplib.WithString("json_input",
				mcplib.Description("JSON object whose paths become variables under JSON_PATH"),
			),
		),
		s.handleExtractVariables,
	)

	// kaiwa_render_template: substitute variable values into a template.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaiwa_render_template",
			mcplib.WithDescription(`Render a prompt template with variable values.

Known variables are substituted. References to variables without a value are
left as written, and reported in missing.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("text",
				mcplib.Description("The template text"),
				mcplib.Required(),
			),
			mcplib.WithString("template_format",
				mcplib.Description(templateFormatDescription),
				mcplib.Enum(formatNames()...),
			),
			mcplib.WithObject("variables",
				mcplib.Description("Variable values by name. Non-string values are rendered as JSON."),
			),
		),
		s.handleRenderTemplate,
	)

	// kaiwa_list_providers: the model providers the playground supports.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaiwa_list_providers",
			mcplib.WithDescription("List the model providers the playground supports, with their defaults and whether tool definitions are validated."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleListProviders,
	)

	// kaiwa_tool_schema: jSON schema and starter definition for a provider.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaiwa_tool_schema",
			mcplib.WithDescription(`Get the JSON schema a provider's tool definitions (or tool calls) must
satisfy, plus a starter tool definition in that provider's shape.

A null schema means the provider accepts any JSON; no structured validation is
applied.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("provider",
				mcplib.Description("Model provider"),
				mcplib.Required(),
				mcplib.Enum(providerNames()...),
			),
			mcplib.WithString("kind",
				mcplib.Description("definition (default) or call"),
				mcplib.Enum("definition", "call"),
			),
		),
		s.handleToolSchema,
	)

	// kaiwa_validate_tool: check a tool definition or call against its schema.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaiwa_validate_tool",
			mcplib.WithDescription("Validate a tool definition or tool call JSON document for a provider. Returns field-level errors; an empty list means valid."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("provider",
				mcplib.Description("Model provider"),
				mcplib.Required(),
				mcplib.Enum(providerNames()...),
			),
			mcplib.WithString("json",
				mcplib.Description("The JSON document to validate"),
				mcplib.Required(),
			),
			mcplib.WithString("kind",
				mcplib.Description("definition (default) or call"),
				mcplib.Enum("definition", "call"),
			),
		),
		s.handleValidateTool,
	)

	// kaiwa_flatten_json: flatten a JSON document into path keys.
	s.mcpServer.AddTool(
		mcplib.NewTool("kaiwa_flatten_json",
			mcplib.WithDescription(`Flatten a JSON document into dotted path keys, the same paths JSON_PATH
templates use as variable names.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("json",
				mcplib.Description("The JSON document"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("format_indices",
				mcplib.Description("Render array positions as [n] instead of .n"),
				mcplib.DefaultBool(true),
			),
			mcplib.WithBoolean("keep_non_terminal",
				mcplib.Description("Also emit intermediate objects and arrays"),
				mcplib.DefaultBool(false),
			),
		),
		s.handleFlattenJSON,
	)
}

func formatNames() []string {
	return []string{
		string(model.TemplateFormatMustache),
		string(model.TemplateFormatFString),
		string(model.TemplateFormatJSONPath),
		string(model.TemplateFormatNone),
	}
}

func providerNames() []string {
	names := make([]string, len(model.ModelProviders))
	for i, p := range model.ModelProviders {
		names[i] = string(p)
	}
	return names
}

func templateFormat(request mcplib.CallToolRequest) (model.TemplateFormat, error) {
	raw := strings.ToUpper(strings.TrimSpace(request.GetString("template_format", "")))
	if raw == "" {
		return model.TemplateFormatMustache, nil
	}
	return model.ParseTemplateFormat(raw)
}

func (s *Server) handleExtractVariables(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	if text == "" {
		return errorResult("text is required"), nil
	}
	format, err := templateFormat(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	jsonInput := request.GetString("json_input", "")
	if format == model.TemplateFormatJSONPath && jsonInput != "" && !jsonutil.IsJSONObjectString(jsonInput) {
		return errorResult("json_input must be a JSON object"), nil
	}

	// A single-message instance runs the same derivation the playground
	// applies to every commit.
	inst := playground.DenormalizedInstance{Messages: []model.Message{
		{Role: model.RoleUser, Content: &text},
	}}
	vs := playground.DeriveVariables([]playground.DenormalizedInstance{inst}, format,
		playground.Input{JSONInput: jsonInput})

	keys := vs.Keys
	if keys == nil {
		keys = []string{}
	}
	return jsonResult(map[string]any{
		"template_format": format,
		"variables":       keys,
	}), nil
}

func (s *Server) handleRenderTemplate(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text := request.GetString("text", "")
	if text == "" {
		return errorResult("text is required"), nil
	}
	format, err := templateFormat(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	vars := map[string]string{}
	if raw, ok := request.GetArguments()["variables"]; ok && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return errorResult("variables must be an object"), nil
		}
		for k, v := range obj {
			vars[k] = jsonutil.ToString(v)
		}
	}

	missing := []string{}
	for _, name := range template.ExtractVariables(text, format) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return jsonResult(map[string]any{
		"rendered": template.Render(text, format, vars),
		"missing":  missing,
	}), nil
}

func (s *Server) handleListProviders(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(map[string]any{"providers": provider.All()}), nil
}

func toolProvider(request mcplib.CallToolRequest) (model.ModelProvider, error) {
	return model.ParseModelProvider(strings.ToUpper(strings.TrimSpace(request.GetString("provider", ""))))
}

func (s *Server) handleToolSchema(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	p, err := toolProvider(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	kind := request.GetString("kind", "definition")

	var (
		schema map[string]any
		ok     bool
	)
	switch kind {
	case "definition":
		schema, ok, err = provider.ToolDefinitionSchema(p)
	case "call":
		schema, ok, err = provider.ToolCallSchema(p)
	default:
		return errorResult(fmt.Sprintf("kind must be definition or call, got %q", kind)), nil
	}
	if err != nil {
		s.logger.Error("mcp: load tool schema", "provider", p, "kind", kind, "error", err)
		return errorResult(fmt.Sprintf("failed to load schema: %v", err)), nil
	}
	starter, err := provider.DefaultToolDefinition(p, 1)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"provider":                p,
		"kind":                    kind,
		"validated":               ok,
		"schema":                  schema,
		"default_tool_definition": starter,
	}), nil
}

func (s *Server) handleValidateTool(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	p, err := toolProvider(request)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	raw := request.GetString("json", "")
	if raw == "" {
		return errorResult("json is required"), nil
	}

	var errs []provider.FieldError
	switch kind := request.GetString("kind", "definition"); kind {
	case "definition":
		errs, err = provider.ValidateToolDefinition(p, raw)
	case "call":
		errs, err = provider.ValidateToolCall(p, raw)
	default:
		return errorResult(fmt.Sprintf("kind must be definition or call, got %q", kind)), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("validation failed: %v", err)), nil
	}
	if errs == nil {
		errs = []provider.FieldError{}
	}
	return jsonResult(map[string]any{
		"valid":  len(errs) == 0,
		"errors": errs,
	}), nil
}

func (s *Server) handleFlattenJSON(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	raw := request.GetString("json", "")
	if raw == "" {
		return errorResult("json is required"), nil
	}
	parsed := jsonutil.SafelyParseJSON(raw)
	if !parsed.OK() {
		return errorResult(parsed.Err.Error()), nil
	}
	opts := jsonutil.FlattenOptions{
		FormatIndices:   request.GetBool("format_indices", true),
		KeepNonTerminal: request.GetBool("keep_non_terminal", false),
	}
	return jsonResult(map[string]any{
		"keys":   jsonutil.FlattenKeys(parsed.JSON, opts),
		"values": jsonutil.Flatten(parsed.JSON, opts),
	}), nil
}
