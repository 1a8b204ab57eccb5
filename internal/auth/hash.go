package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashAPIKey hashes an API key using Argon2id. The result is
// base64(salt)$base64(hash).
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return base64.StdEncoding.EncodeToString(salt) + "$" + base64.StdEncoding.EncodeToString(hash), nil
}

// VerifyAPIKey checks an API key against a HashAPIKey result in constant time.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	saltPart, hashPart, ok := strings.Cut(encoded, "$")
	if !ok {
		return false, errors.New("auth: invalid hash format")
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	expected, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}
	computed := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}

// KeyVerifier holds the hash of the bootstrap API key. The plaintext key is
// not retained after construction.
type KeyVerifier struct {
	hash string
}

// NewKeyVerifier hashes apiKey. An empty key yields a nil verifier, which
// means authentication is disabled.
func NewKeyVerifier(apiKey string) (*KeyVerifier, error) {
	if apiKey == "" {
		return nil, nil
	}
	h, err := HashAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	return &KeyVerifier{hash: h}, nil
}

// Verify reports whether candidate is the bootstrap key.
func (v *KeyVerifier) Verify(candidate string) bool {
	ok, err := VerifyAPIKey(candidate, v.hash)
	return err == nil && ok
}
