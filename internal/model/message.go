package model

import (
	"fmt"
	"strings"
)

// MessageID identifies a message inside one playground store.
type MessageID int

// Role is the speaker of a chat turn.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// ParseRole normalises the role names used by the various providers and
// trace conventions onto the four playground roles.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system", "developer":
		return RoleSystem, nil
	case "user", "human":
		return RoleUser, nil
	case "ai", "assistant", "model":
		return RoleAI, nil
	case "tool", "function":
		return RoleTool, nil
	default:
		return "", fmt.Errorf("unknown message role %q", s)
	}
}

// Message is one chat turn. Messages are owned by the normalized store and
// referenced by id from instance templates.
type Message struct {
	ID         MessageID        `json:"id"`
	Role       Role             `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID *string          `json:"tool_call_id,omitempty"`
}

// Text returns the message content, or "" when it is null.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// MessagePatch replaces the fields that are set.
type MessagePatch struct {
	Role       *Role            `json:"role,omitempty"`
	Content    *string          `json:"content,omitempty"`
	ClearText  bool             `json:"clear_content,omitempty"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID *string          `json:"tool_call_id,omitempty"`
}

// Apply returns a copy of m with the patch applied.
func (p MessagePatch) Apply(m Message) Message {
	if p.Role != nil {
		m.Role = *p.Role
	}
	if p.ClearText {
		m.Content = nil
	} else if p.Content != nil {
		c := *p.Content
		m.Content = &c
	}
	if p.ToolCalls != nil {
		m.ToolCalls = p.ToolCalls
	}
	if p.ToolCallID != nil {
		id := *p.ToolCallID
		m.ToolCallID = &id
	}
	return m
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }
