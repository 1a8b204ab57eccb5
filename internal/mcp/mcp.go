// Package mcp implements the Model Context Protocol server for kaiwa.
//
// The MCP server exposes the playground's template, provider and JSON
// helpers as tools, and live sessions as read-only resources, so
// MCP-compatible agents can author and inspect prompts the same way the
// HTTP API does.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kaiwa/internal/service/sessions"
)

// Server wraps the MCP server with kaiwa's session manager.
type Server struct {
	mcpServer *mcpserver.MCPServer
	sessions  *sessions.Manager
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools and
// prompts. sessions may be nil, in which case session resources report that
// no sessions exist.
func New(mgr *sessions.Manager, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: mgr,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kaiwa",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerSessionTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const serverInstructions = `kaiwa holds LLM playground state: prompt templates, model settings and tool
definitions. Use kaiwa_extract_variables and kaiwa_render_template to work with
templates, kaiwa_tool_schema and kaiwa_validate_tool before writing a tool
definition for a provider, and the kaiwa://sessions resources to inspect what
users are editing.`

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
