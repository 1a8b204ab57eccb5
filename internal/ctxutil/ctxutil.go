// Package ctxutil provides shared context key accessors.
//
// server populates the caller's claims in its auth middleware and mcp reads
// them in tool handlers. server imports mcp, so both read the claims through
// this package instead of each other.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/kaiwa/internal/auth"
	"github.com/ashita-ai/kaiwa/internal/model"
)

type contextKey string

const keyClaims contextKey = "claims"

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// HasRole reports whether the context carries claims of at least minRole.
func HasRole(ctx context.Context, minRole model.AccessRole) bool {
	c := ClaimsFromContext(ctx)
	return c != nil && model.RoleAtLeast(c.Role, minRole)
}

// Subject returns the claims' subject, or "" without claims.
func Subject(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
