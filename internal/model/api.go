package model

import (
	"fmt"
	"time"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// AccessRole is the access level carried in an auth token.
type AccessRole string

const (
	AccessAdmin  AccessRole = "admin"
	AccessEditor AccessRole = "editor"
	AccessViewer AccessRole = "viewer"
)

// RoleRank returns the numeric rank of a role (higher = more privileges).
func RoleRank(r AccessRole) int {
	switch r {
	case AccessAdmin:
		return 3
	case AccessEditor:
		return 2
	case AccessViewer:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole AccessRole) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ValidateName checks a user-chosen identifier for prompts, tags and custom
// providers: 1-255 ASCII characters, alphanumeric plus dots, hyphens and
// underscores.
func ValidateName(kind, name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%s is required", kind)
	}
	if len(name) > 255 {
		return fmt.Errorf("%s must be at most 255 characters", kind)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' {
			return fmt.Errorf("%s contains invalid character at position %d: %q", kind, i, c)
		}
	}
	return nil
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	APIKey string `json:"api_key"`
	// Role narrows the issued token. Empty means admin.
	Role AccessRole `json:"role,omitempty"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Role      AccessRole `json:"role"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Postgres    string `json:"postgres,omitempty"`
	Preferences string `json:"preferences"`
	Sessions    int    `json:"sessions"`
	Uptime      int64  `json:"uptime_seconds"`
}

// Preferences are persisted per-user playground defaults.
type Preferences struct {
	Streaming     bool                          `json:"streaming"`
	DefaultModels map[ModelProvider]ModelConfig `json:"default_models"`
}
