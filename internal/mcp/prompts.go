package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/provider"
)

func (s *Server) registerPrompts() {
	// write-tool-definition: walks the agent through authoring a provider tool.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("write-tool-definition",
			mcplib.WithPromptDescription("Author a tool definition in the shape a model provider expects"),
			mcplib.WithArgument("provider",
				mcplib.ArgumentDescription("The model provider, e.g. OPENAI or ANTHROPIC"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("purpose",
				mcplib.ArgumentDescription("What the tool should do"),
			),
		),
		s.handleWriteToolDefinitionPrompt,
	)

	// template-guide: explains the playground's template formats.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("template-guide",
			mcplib.WithPromptDescription("How prompt template variables work in each template format"),
		),
		s.handleTemplateGuidePrompt,
	)
}

func (s *Server) handleWriteToolDefinitionPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	raw := strings.ToUpper(strings.TrimSpace(request.Params.Arguments["provider"]))
	if raw == "" {
		return nil, fmt.Errorf("provider argument is required")
	}
	p, err := model.ParseModelProvider(raw)
	if err != nil {
		return nil, fmt.Errorf("mcp: write-tool-definition: %w", err)
	}

	starter, err := provider.DefaultToolDefinition(p, 1)
	if err != nil {
		return nil, fmt.Errorf("mcp: write-tool-definition: %w", err)
	}
	example, err := json.MarshalIndent(starter, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal starter: %w", err)
	}

	purpose := request.Params.Arguments["purpose"]
	if purpose == "" {
		purpose = "the task at hand"
	}

	_, validated, _ := provider.ToolDefinitionSchema(p)
	check := "Then CALL kaiwa_validate_tool with the same provider and your JSON. Fix every reported field error before using the definition."
	if !validated {
		check = "This provider accepts any JSON object as a tool definition, so there is no schema to validate against. Keep the structure close to the example."
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Write a %s tool definition", p),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Write a tool definition for %s that covers %s.

1. CALL kaiwa_tool_schema with provider="%s" to read the exact schema.

2. START from this example, which is the shape %s expects:

%s

3. NAME the function for what it does, describe when the model should call it,
   and declare every argument with a type and description.

4. %s`, p, purpose, p, p, string(example), check),
				},
			},
		},
	}, nil
}

func (s *Server) handleTemplateGuidePrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Prompt template formats in the kaiwa playground",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `Playground messages are templates. Every instance in a session shares one
template format and one set of variable values.

## Formats

- MUSTACHE: variables are written {{name}}. Dotted names such as
  {{user.name}} are a single variable.
- F_STRING: variables are written {name}. Write {{ or }} for a literal brace.
- JSON_PATH: variables are not written in messages. They are the flattened
  paths of the session's JSON input, e.g. {"a":{"b":[1]}} gives a.b[0].
- NONE: messages are sent as written.

## Tools

- kaiwa_extract_variables: list the variables a template references
- kaiwa_render_template: substitute values and see which are missing
- kaiwa_flatten_json: preview the paths a JSON input produces

Variables are listed in order of first appearance across all instances. A
value typed for a variable is kept even after the variable is removed from
every message, so it returns if the variable comes back.`,
				},
			},
		},
	}, nil
}
