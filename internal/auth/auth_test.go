package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaiwa/internal/auth"
	"github.com/ashita-ai/kaiwa/internal/model"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = auth.VerifyAPIKey("x", "no-separator")
	assert.Error(t, err)
}

func TestKeyVerifier(t *testing.T) {
	v, err := auth.NewKeyVerifier("")
	require.NoError(t, err)
	assert.Nil(t, v, "empty key disables auth")

	v, err = auth.NewKeyVerifier("bootstrap")
	require.NoError(t, err)
	assert.True(t, v.Verify("bootstrap"))
	assert.False(t, v.Verify("guess"))
}

func TestJWTIssueAndValidate(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := mgr.IssueToken("operator", model.AccessEditor)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, model.AccessEditor, claims.Role)

	_, _, err = mgr.IssueToken("operator", "superuser")
	assert.Error(t, err)
	_, _, err = mgr.IssueToken("", model.AccessViewer)
	assert.Error(t, err)
}

func TestValidateTokenFromOtherKey(t *testing.T) {
	a, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	b, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := a.IssueToken("operator", model.AccessAdmin)
	require.NoError(t, err)
	_, err = b.ValidateToken(token)
	assert.Error(t, err)
}

// newTestJWTManagerWithKey creates a JWTManager backed by PEM files and
// returns the private key for forging tokens.
func newTestJWTManagerWithKey(t *testing.T) (*auth.JWTManager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	dir := t.TempDir()

	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0o600))

	pubBytes, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pubPath := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0o600))

	mgr, err := auth.NewJWTManager(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	return mgr, priv
}

func forgeToken(t *testing.T, key ed25519.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestValidateTokenRejectsForgedClaims(t *testing.T) {
	mgr, key := newTestJWTManagerWithKey(t)
	now := time.Now().UTC()
	base := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "operator",
			Issuer:    "kaiwa",
			Audience:  jwt.ClaimStrings{"kaiwa"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        uuid.New().String(),
		}
	}

	tests := []struct {
		name   string
		mutate func(c *auth.Claims)
	}{
		{"wrong issuer", func(c *auth.Claims) { c.Issuer = "someone-else" }},
		{"wrong audience", func(c *auth.Claims) { c.Audience = jwt.ClaimStrings{"other"} }},
		{"expired", func(c *auth.Claims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute)) }},
		{"no expiry", func(c *auth.Claims) { c.ExpiresAt = nil }},
		{"empty subject", func(c *auth.Claims) { c.Subject = "" }},
		{"unknown role", func(c *auth.Claims) { c.Role = "root" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &auth.Claims{RegisteredClaims: base(), Role: model.AccessViewer}
			tt.mutate(claims)
			_, err := mgr.ValidateToken(forgeToken(t, key, claims))
			assert.Error(t, err)
		})
	}

	valid := &auth.Claims{RegisteredClaims: base(), Role: model.AccessViewer}
	got, err := mgr.ValidateToken(forgeToken(t, key, valid))
	require.NoError(t, err)
	assert.Equal(t, model.AccessViewer, got.Role)
}

func TestNewJWTManagerMismatchedKeys(t *testing.T) {
	dir := t.TempDir()
	_, privA, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubB, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	privBytes, err := x509.MarshalPKCS8PrivateKey(privA)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(pubB)
	require.NoError(t, err)
	privPath := filepath.Join(dir, "a.pem")
	pubPath := filepath.Join(dir, "b.pem")
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}), 0o600))
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0o600))

	_, err = auth.NewJWTManager(privPath, pubPath, time.Hour)
	assert.ErrorContains(t, err, "does not match")
}
