package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGroupCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := newGroupCode()
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(code, "GB-"), "code %q missing prefix", code)
		suffix := strings.TrimPrefix(code, "GB-")
		assert.Len(t, suffix, 6)
		for _, r := range suffix {
			ok := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			assert.True(t, ok, "code %q contains %q outside charset", code, r)
		}
		seen[code] = true
	}
	// 100 draws from a 36^6 space should not collide.
	assert.Len(t, seen, 100)
}

func TestNewShareToken(t *testing.T) {
	a, err := newShareToken()
	require.NoError(t, err)
	b, err := newShareToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	// URL-safe: no padding, no reserved characters.
	for _, tok := range []string{a, b} {
		assert.NotContains(t, tok, "=")
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.GreaterOrEqual(t, len(tok), 40)
	}
}
