package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProducesValidTokens(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		tok, err := New()
		require.NoError(t, err)
		require.True(t, Valid(tok), tok)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %s", tok)
		seen[tok] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	require.True(t, Valid("0f2c9a6e-6a1a-4a5b-9b9e-2d4f1c3b5a7d"))
	require.False(t, Valid(""))
	require.False(t, Valid("not-a-uuid"))
	require.False(t, Valid("0f2c9a6e-6a1a-4a5b-9b9e"))
}
