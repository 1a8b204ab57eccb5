package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kaiwa/internal/service/sessions"
)

const (
	sessionsURI        = "kaiwa://sessions"
	sessionStateURI    = "kaiwa://sessions/{id}/state"
	sessionURIPrefix   = "kaiwa://sessions/"
	sessionStateSuffix = "/state"
)

func (s *Server) registerResources() {
	// kaiwa://sessions: live playground sessions.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			sessionsURI,
			"Playground Sessions",
			mcplib.WithResourceDescription("Live playground sessions, most recently used first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSessions,
	)

	// kaiwa://sessions/{id}/state: one session's instances and variables.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			sessionStateURI,
			"Session State",
			mcplib.WithTemplateDescription("Instances, messages and variables of a playground session"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleSessionState,
	)
}

func (s *Server) handleSessions(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	list := []sessions.Info{}
	if s.sessions != nil {
		list = append(list, s.sessions.List()...)
	}
	return textResource(sessionsURI, map[string]any{
		"sessions": list,
		"total":    len(list),
	})
}

func (s *Server) handleSessionState(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id, err := parseSessionURI(uri)
	if err != nil {
		return nil, err
	}
	if s.sessions == nil {
		return nil, fmt.Errorf("mcp: session %s: %w", id, sessions.ErrNotFound)
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, fmt.Errorf("mcp: session %s: %w", id, err)
	}
	return textResource(uri, compactSession(sess.Info(), sess.Store.Snapshot()))
}

// parseSessionURI extracts the session id from kaiwa://sessions/{id}/state.
func parseSessionURI(uri string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(uri, sessionURIPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("mcp: invalid session URI: %s", uri)
	}
	raw, ok := strings.CutSuffix(rest, sessionStateSuffix)
	if !ok {
		return uuid.Nil, fmt.Errorf("mcp: invalid session URI: %s", uri)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid session id %q: %w", raw, err)
	}
	return id, nil
}

func textResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
