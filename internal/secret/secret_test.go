package secret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	b, err := ParseKey(key)
	require.NoError(t, err)
	return b
}

func TestSealOpen(t *testing.T) {
	b := newTestBox(t)

	sealed, err := b.Seal("sk-live-123")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "sk-live-123")

	again, err := b.Seal("sk-live-123")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per seal")

	plain, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", plain)
}

func TestOpenPlaintextPassthrough(t *testing.T) {
	b := newTestBox(t)
	plain, err := b.Open("not-sealed")
	require.NoError(t, err)
	assert.Equal(t, "not-sealed", plain)
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := newTestBox(t).Seal("secret")
	require.NoError(t, err)

	_, err = newTestBox(t).Open(sealed)
	assert.ErrorIs(t, err, ErrOpen)

	_, err = newTestBox(t).Open(sealedPrefix + "AAAA")
	assert.ErrorIs(t, err, ErrOpen)
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("zz")
	assert.Error(t, err)

	_, err = ParseKey(strings.Repeat("ab", 16))
	assert.ErrorContains(t, err, "32 bytes")

	_, err = ParseKey(" " + strings.Repeat("ab", 32) + "\n")
	assert.NoError(t, err)
}
