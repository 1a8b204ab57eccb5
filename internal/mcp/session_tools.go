package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kaiwa/internal/ctxutil"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/service/sessions"
)

// registerSessionTools adds the tools that change live playground sessions.
// They require the editor role.
func (s *Server) registerSessionTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("kaiwa_set_variable",
			mcplib.WithDescription(`Set the value of a template variable in a live playground session.

WHEN TO USE: To fill in the variables a session's templates reference, so the
user sees rendered prompts. Read kaiwa://sessions/{id}/state first to learn
the variable names.

Values for names no template references yet are kept for when they appear.
Requires the editor role.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("session_id",
				mcplib.Description("Session UUID"),
				mcplib.Required(),
			),
			mcplib.WithString("name",
				mcplib.Description("Variable name"),
				mcplib.Required(),
			),
			mcplib.WithString("value",
				mcplib.Description("Variable value"),
				mcplib.Required(),
			),
		),
		s.handleSetVariable,
	)
}

func (s *Server) handleSetVariable(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if !ctxutil.HasRole(ctx, model.AccessEditor) {
		return errorResult("setting variables requires the editor role"), nil
	}

	rawID := request.GetString("session_id", "")
	id, err := uuid.Parse(rawID)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid session_id %q", rawID)), nil
	}
	name := request.GetString("name", "")
	if name == "" {
		return errorResult("name is required"), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	if s.sessions == nil {
		return errorResult("no live sessions"), nil
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return errorResult(fmt.Sprintf("session %s not found", id)), nil
		}
		return nil, fmt.Errorf("mcp: get session: %w", err)
	}
	if err := sess.Store.SetVariableValue(name, value); err != nil {
		return nil, fmt.Errorf("mcp: set variable: %w", err)
	}
	s.logger.Info("mcp: variable set",
		"session_id", id, "name", name, "subject", ctxutil.Subject(ctx))

	st := sess.Store.Snapshot()
	return jsonResult(map[string]any{
		"session_id": id,
		"version":    st.Version,
		"variables":  st.Variables,
	}), nil
}
